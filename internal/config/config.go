// Package config loads application configuration from file and environment.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Sources SourcesConfig `yaml:"sources" mapstructure:"sources"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	Score   ScoreConfig   `yaml:"score" mapstructure:"score"`
	Dedup   DedupConfig   `yaml:"dedup" mapstructure:"dedup"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// SourcesConfig locates the source catalog file.
type SourcesConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// FetchConfig configures polite page retrieval.
type FetchConfig struct {
	UserAgent       string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries      int     `yaml:"max_retries" mapstructure:"max_retries"`
	BackoffBaseSecs int     `yaml:"backoff_base_secs" mapstructure:"backoff_base_secs"`
	Concurrency     int     `yaml:"concurrency" mapstructure:"concurrency"`
	HostRPS         float64 `yaml:"host_rps" mapstructure:"host_rps"`
}

// Timeout returns the fetch timeout as a duration.
func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ExtractConfig configures candidate extraction gates. The keyword lists
// are injected so thresholds stay independently testable and tunable.
type ExtractConfig struct {
	NameKeywords      []string `yaml:"name_keywords" mapstructure:"name_keywords"`
	AddressKeywords   []string `yaml:"address_keywords" mapstructure:"address_keywords"`
	FallbackSelectors []string `yaml:"fallback_selectors" mapstructure:"fallback_selectors"`
	MinNameLen        int      `yaml:"min_name_len" mapstructure:"min_name_len"`
	MaxNameLen        int      `yaml:"max_name_len" mapstructure:"max_name_len"`
	MinAddressLen     int      `yaml:"min_address_len" mapstructure:"min_address_len"`
	ContextChars      int      `yaml:"context_chars" mapstructure:"context_chars"`
	DescriptionChars  int      `yaml:"description_chars" mapstructure:"description_chars"`
}

// ScoreConfig holds the additive confidence weights and acceptance cutoff.
// The weights are heuristic defaults calibrated against real source pages,
// not derived values.
type ScoreConfig struct {
	NameKeyword     int      `yaml:"name_keyword" mapstructure:"name_keyword"`
	ContextKeyword  int      `yaml:"context_keyword" mapstructure:"context_keyword"`
	HasAddress      int      `yaml:"has_address" mapstructure:"has_address"`
	TrustedSource   int      `yaml:"trusted_source" mapstructure:"trusted_source"`
	BoilerplateHit  int      `yaml:"boilerplate_hit" mapstructure:"boilerplate_hit"`
	SentenceName    int      `yaml:"sentence_name" mapstructure:"sentence_name"`
	AcceptThreshold int      `yaml:"accept_threshold" mapstructure:"accept_threshold"`
	ContextKeywords []string `yaml:"context_keywords" mapstructure:"context_keywords"`
	TrustedSources  []string `yaml:"trusted_sources" mapstructure:"trusted_sources"`
}

// DedupConfig configures identity-key construction.
type DedupConfig struct {
	SuffixWords []string `yaml:"suffix_words" mapstructure:"suffix_words"`
}

// GeocodeConfig configures the provider chain and service-area bounds.
type GeocodeConfig struct {
	GoogleKey     string       `yaml:"google_key" mapstructure:"google_key"`
	NominatimURL  string       `yaml:"nominatim_url" mapstructure:"nominatim_url"`
	CountryCodes  string       `yaml:"country_codes" mapstructure:"country_codes"`
	RegionSuffix  string       `yaml:"region_suffix" mapstructure:"region_suffix"`
	TimeoutSecs   int          `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	BatchDelayMs  int          `yaml:"batch_delay_ms" mapstructure:"batch_delay_ms"`
	RPS           float64      `yaml:"rps" mapstructure:"rps"`
	Bounds        BoundsConfig `yaml:"bounds" mapstructure:"bounds"`
	EnforceBounds bool         `yaml:"enforce_bounds" mapstructure:"enforce_bounds"`
}

// Timeout returns the per-call geocoding timeout as a duration.
func (c GeocodeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// BatchDelay returns the fixed inter-call delay for batch geocoding.
func (c GeocodeConfig) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelayMs) * time.Millisecond
}

// BoundsConfig is the service-area bounding box.
type BoundsConfig struct {
	North float64 `yaml:"north" mapstructure:"north"`
	South float64 `yaml:"south" mapstructure:"south"`
	East  float64 `yaml:"east" mapstructure:"east"`
	West  float64 `yaml:"west" mapstructure:"west"`
}

// ServerConfig configures the trigger server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("AMALA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("sources.path", "sources.yaml")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "amala.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)

	v.SetDefault("fetch.user_agent", "AmalaAtlas-Discovery-Bot/1.1")
	v.SetDefault("fetch.timeout_secs", 10)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.backoff_base_secs", 2)
	v.SetDefault("fetch.concurrency", 8)
	v.SetDefault("fetch.host_rps", 2)

	v.SetDefault("extract.name_keywords", []string{
		"amala", "kitchen", "buka", "restaurant", "spot", "joint", "canteen", "grill", "place",
	})
	v.SetDefault("extract.address_keywords", []string{
		"street", "st.", "road", "rd.", "avenue", "ave.", "lane", "ln.", "drive", "dr.",
		"way", "close", "crescent", "boulevard", "blvd", "place", "plc", "plaza", "market",
		"square", "city", "island", "postcode", "zip", "suite",
		"california", "texas", "new york", "london", "manchester", "lagos", "abuja",
		"accra", "toronto", "tokyo", "paris",
	})
	v.SetDefault("extract.fallback_selectors", []string{
		"h2", "h3", "h4", "strong", ".restaurant-name", ".spot-name",
	})
	v.SetDefault("extract.min_name_len", 3)
	v.SetDefault("extract.max_name_len", 80)
	v.SetDefault("extract.min_address_len", 10)
	v.SetDefault("extract.context_chars", 1200)
	v.SetDefault("extract.description_chars", 240)

	v.SetDefault("score.name_keyword", 30)
	v.SetDefault("score.context_keyword", 20)
	v.SetDefault("score.has_address", 40)
	v.SetDefault("score.trusted_source", 10)
	v.SetDefault("score.boilerplate_hit", -25)
	v.SetDefault("score.sentence_name", -10)
	v.SetDefault("score.accept_threshold", 50)
	v.SetDefault("score.context_keywords", []string{"ewedu", "gbegiri", "abula"})
	v.SetDefault("score.trusted_sources", []string{
		"eatdrinklagos",
		"guardian.ng", "guardian nigeria",
		"vanguardngr.com", "vanguard nigeria",
		"foodieinlagos", "thelagosweekender",
		"afrobuy", "houstoniamag", "secretatlanta", "theafricandream", "tastesofnigeria",
	})

	v.SetDefault("dedup.suffix_words", []string{
		"restaurant", "spot", "joint", "buka", "canteen", "kitchen", "place", "grill",
	})

	v.SetDefault("geocode.nominatim_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.country_codes", "ng")
	v.SetDefault("geocode.region_suffix", "Lagos, Nigeria")
	v.SetDefault("geocode.timeout_secs", 10)
	v.SetDefault("geocode.batch_delay_ms", 500)
	v.SetDefault("geocode.rps", 1)
	v.SetDefault("geocode.enforce_bounds", true)
	// Lagos approximate bounds.
	v.SetDefault("geocode.bounds.north", 6.8)
	v.SetDefault("geocode.bounds.south", 6.2)
	v.SetDefault("geocode.bounds.east", 3.8)
	v.SetDefault("geocode.bounds.west", 3.0)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
