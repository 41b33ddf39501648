package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/amala-atlas/discovery-cli/internal/dedup"
	"github.com/amala-atlas/discovery-cli/internal/model"
	"github.com/amala-atlas/discovery-cli/internal/pipeline"
	"github.com/amala-atlas/discovery-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the discovery trigger and moderation API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(env *pipelineEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/discover", handleDiscover(env))
		r.Post("/submit", handleSubmit(env))
		r.Post("/moderate", handleModerate(env))
		r.Post("/geocode", handleGeocode(env))
		r.Post("/pending/geocode-missing", handleGeocodeMissing(env))
		r.Get("/pending", handleListPending(env))
		r.Get("/duplicates", handleDuplicates(env))
	})

	return r
}

func handleDiscover(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := env.Pipeline.Run(r.Context())
		if err != nil {
			zap.L().Error("triggered discovery run failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, eris.Cause(err).Error())
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func handleSubmit(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name        string `json:"name"`
			Address     string `json:"address"`
			Description string `json:"description"`
			ImageURL    string `json:"image_url"`
			Source      string `json:"source"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Name == "" || req.Address == "" {
			writeError(w, http.StatusBadRequest, "name and address are required")
			return
		}
		if req.Source == "" {
			req.Source = "user-submission"
		}

		gc := model.GeocodedCandidate{
			ScoredCandidate: model.ScoredCandidate{
				RawCandidate: model.RawCandidate{
					Name:        req.Name,
					Address:     req.Address,
					Description: req.Description,
					ImageURL:    req.ImageURL,
					SourceName:  req.Source,
					ScrapedAt:   time.Now().UTC(),
				},
				Confidence: 100,
			},
			GeocodingStatus: model.GeocodingFailed,
		}

		// Best effort: a submission without resolvable coordinates still
		// enters the queue.
		if res := env.Geocoder.Geocode(r.Context(), req.Address); res != nil && res.Matched {
			gc.Location = &model.LatLng{Lat: res.Latitude, Lng: res.Longitude}
			gc.GeocodedAddress = res.FormattedAddress
			gc.GeocodingConfidence = res.Confidence
			gc.GeocodingStatus = model.GeocodingSuccess
			gc.Provider = res.Provider
		}

		sp := pipeline.Assemble(gc, time.Now().UTC())
		if _, err := env.Store.InsertPending(r.Context(), []model.PendingSpot{sp}); err != nil {
			zap.L().Error("submission insert failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "persist submission")
			return
		}
		writeJSON(w, http.StatusCreated, sp)
	}
}

func handleModerate(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID          string `json:"id"`
			Action      string `json:"action"`
			MergeIntoID string `json:"merge_into_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.ID == "" {
			writeError(w, http.StatusBadRequest, "id is required")
			return
		}

		switch req.Action {
		case "approve":
			spot, err := env.Store.Approve(r.Context(), req.ID)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, spot)
		case "reject":
			if err := env.Store.Reject(r.Context(), req.ID); err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "rejected", "id": req.ID})
		case "merge":
			if req.MergeIntoID == "" {
				writeError(w, http.StatusBadRequest, "merge_into_id is required for merge")
				return
			}
			if err := env.Store.Merge(r.Context(), req.ID, req.MergeIntoID); err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "merged", "id": req.ID, "merged_into": req.MergeIntoID})
		default:
			writeError(w, http.StatusBadRequest, "action must be approve, reject, or merge")
		}
	}
}

func handleGeocode(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
			writeError(w, http.StatusBadRequest, "id is required")
			return
		}

		sp, err := env.Pipeline.GeocodeOne(r.Context(), req.ID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sp)
	}
}

func handleGeocodeMissing(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resolved, unresolved, err := env.Pipeline.GeocodeMissing(r.Context(), 0)
		if err != nil {
			zap.L().Error("batch geocode failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "batch geocode")
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"resolved": resolved, "unresolved": unresolved})
	}
}

func handleListPending(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.PendingFilter{
			Status: model.SpotStatus(r.URL.Query().Get("status")),
		}
		if r.URL.Query().Get("missing_coordinates") == "true" {
			filter.MissingCoordinates = true
		}
		pending, err := env.Store.ListPending(r.Context(), filter)
		if err != nil {
			zap.L().Error("pending list failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list pending")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"pending": pending, "count": len(pending)})
	}
}

func handleDuplicates(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" {
			writeError(w, http.StatusBadRequest, "name query parameter is required")
			return
		}

		spots, err := env.Store.ListSpots(r.Context())
		if err != nil {
			zap.L().Error("spot list failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list spots")
			return
		}

		matches := make([]model.Spot, 0)
		for _, s := range spots {
			if dedup.Similar(s.Name, name) {
				matches = append(matches, s)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"matches": matches, "count": len(matches)})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps prepared not-found errors to 404 and everything
// else to 500.
func writeStoreError(w http.ResponseWriter, err error) {
	if strings.Contains(err.Error(), "not found") {
		writeError(w, http.StatusNotFound, eris.Cause(err).Error())
		return
	}
	zap.L().Error("store operation failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "store operation failed")
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
