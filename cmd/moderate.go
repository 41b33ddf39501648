package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	moderateID        string
	moderateAction    string
	moderateMergeInto string
)

var moderateCmd = &cobra.Command{
	Use:   "moderate",
	Short: "Approve, reject, or merge a pending record",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		switch moderateAction {
		case "approve":
			spot, err := st.Approve(ctx, moderateID)
			if err != nil {
				return err
			}
			zap.L().Info("approved", zap.String("id", moderateID), zap.String("spot_id", spot.ID))
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(spot)
		case "reject":
			if err := st.Reject(ctx, moderateID); err != nil {
				return err
			}
			zap.L().Info("rejected", zap.String("id", moderateID))
			return nil
		case "merge":
			if moderateMergeInto == "" {
				return eris.New("--merge-into is required for merge")
			}
			if err := st.Merge(ctx, moderateID, moderateMergeInto); err != nil {
				return err
			}
			zap.L().Info("merged",
				zap.String("id", moderateID),
				zap.String("merged_into", moderateMergeInto),
			)
			return nil
		default:
			return eris.Errorf("unknown action %q: must be approve, reject, or merge", moderateAction)
		}
	},
}

func init() {
	moderateCmd.Flags().StringVar(&moderateID, "id", "", "pending record ID (required)")
	moderateCmd.Flags().StringVar(&moderateAction, "action", "", "approve, reject, or merge (required)")
	moderateCmd.Flags().StringVar(&moderateMergeInto, "merge-into", "", "canonical spot ID to merge into")
	_ = moderateCmd.MarkFlagRequired("id")
	_ = moderateCmd.MarkFlagRequired("action")
	rootCmd.AddCommand(moderateCmd)
}
