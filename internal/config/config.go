package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete search core configuration. It mirrors the
// recognized options listed in the external interfaces section of the
// specification.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Rate      RateConfig      `yaml:"rate" json:"rate"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Adaptive  AdaptiveConfig  `yaml:"adaptive" json:"adaptive"`
	Analytics AnalyticsConfig `yaml:"analytics" json:"analytics"`
	Retention RetentionConfig `yaml:"retention" json:"retention"`
	Baseline  BaselineConfig  `yaml:"baseline" json:"baseline"`
	Server    ServerConfig    `yaml:"server" json:"server"`
}

// EmbeddingConfig configures the embedding provider (C1).
type EmbeddingConfig struct {
	ModelName   string `yaml:"model_name" json:"model_name"`
	Dim         int    `yaml:"dim" json:"dim"`
	LRUCapacity int    `yaml:"lru_capacity" json:"lru_capacity"`
	ImageMaxDim int    `yaml:"image_max_dim" json:"image_max_dim"`

	// ImageTimeout is the per-request deadline for image embedding calls.
	ImageTimeout time.Duration `yaml:"image_timeout" json:"image_timeout"`

	// TextWeightByCategory and ImageWeightByCategory hold per-category
	// blend weights for combining text and image embeddings. A
	// store-specific entry in StoreWeightOverrides always wins over the
	// category default here.
	TextWeightByCategory  map[string]float64 `yaml:"text_weight_by_category" json:"text_weight_by_category"`
	ImageWeightByCategory map[string]float64 `yaml:"image_weight_by_category" json:"image_weight_by_category"`

	// StoreWeightOverrides maps a store scope to its own CategoryWeights,
	// taking precedence over the category-level defaults above.
	StoreWeightOverrides map[string]CategoryWeights `yaml:"store_weight_overrides" json:"store_weight_overrides"`

	// Endpoint and APIKeyEnv configure the HTTP embedding provider.
	// APIKeyEnv names the environment variable holding the credential —
	// the credential itself is never stored in the config file.
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	APIKeyEnv string `yaml:"api_key_env" json:"api_key_env"`
}

// CategoryWeights is a text/image blend weight pair for one category or
// store scope. TextWeight + ImageWeight should sum to 1.0.
type CategoryWeights struct {
	TextWeight  float64 `yaml:"text_weight" json:"text_weight"`
	ImageWeight float64 `yaml:"image_weight" json:"image_weight"`
}

// CacheConfig configures the result cache (C3): one TTL per cached shape.
type CacheConfig struct {
	TTLSemantic   time.Duration `yaml:"ttl_semantic" json:"ttl_semantic"`
	TTLFuzzy      time.Duration `yaml:"ttl_fuzzy" json:"ttl_fuzzy"`
	TTLAggregates time.Duration `yaml:"ttl_aggregates" json:"ttl_aggregates"`
	TTLFacets     time.Duration `yaml:"ttl_facets" json:"ttl_facets"`
}

// RateConfig configures the rate limiter (C4): outbound token bucket
// against the embedding provider, inbound sliding window per caller.
type RateConfig struct {
	OutboundRPS          float64 `yaml:"outbound_rps" json:"outbound_rps"`
	OutboundBurst        int     `yaml:"outbound_burst" json:"outbound_burst"`
	InboundPerWindow     int     `yaml:"inbound_per_window" json:"inbound_per_window"`
	InboundWindowSeconds int     `yaml:"inbound_window_seconds" json:"inbound_window_seconds"`
}

// SearchConfig configures the search orchestrator (C5).
type SearchConfig struct {
	DefaultSimilarityThreshold float64 `yaml:"default_similarity_threshold" json:"default_similarity_threshold"`
	MaxPageSize                int     `yaml:"max_page_size" json:"max_page_size"`
	FuzzyMinTrigramScore       float64 `yaml:"fuzzy_min_trigram_score" json:"fuzzy_min_trigram_score"`

	// FacetDimensions supplements the distilled spec with configurable
	// value lexicons for the facet builder (C11), generalized from
	// facets_service.py's hardcoded per-market vocabulary.
	FacetDimensions []FacetDimension `yaml:"facet_dimensions" json:"facet_dimensions"`

	// PriceBuckets is the fixed bucketization C11 groups results into,
	// generalized from facets_service.py's hardcoded price_ranges table.
	PriceBuckets []PriceBucket `yaml:"price_buckets" json:"price_buckets"`
}

// FacetDimension names one facet axis (color, material, size, ...) and the
// vocabulary of recognized values used to bucket product tags into it.
type FacetDimension struct {
	Name   string   `yaml:"name" json:"name"`
	Values []string `yaml:"values" json:"values"`
}

// PriceBucket is one bucket in the fixed price-facet bucketization.
// MaxCents of nil means unbounded (the top bucket).
type PriceBucket struct {
	Label    string `yaml:"label" json:"label"`
	MinCents int64  `yaml:"min_cents" json:"min_cents"`
	MaxCents *int64 `yaml:"max_cents" json:"max_cents"`
}

// AdaptiveConfig configures the adaptive filter engine (C7).
type AdaptiveConfig struct {
	MinImprovementPct     float64 `yaml:"min_improvement_pct" json:"min_improvement_pct"`
	MaxStrategiesPerQuery int     `yaml:"max_strategies_per_query" json:"max_strategies_per_query"`
}

// AnalyticsConfig configures the analytics recorder (C6): the bounded
// buffer admission valve, the writer pool that drains it, and the
// size/time thresholds each writer batches commits against.
type AnalyticsConfig struct {
	BufferSize    int           `yaml:"buffer_size" json:"buffer_size"`
	WriterCount   int           `yaml:"writer_count" json:"writer_count"`
	BatchSize     int           `yaml:"batch_size" json:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval" json:"flush_interval"`
}

// RetentionConfig configures the retention manager (C10).
type RetentionConfig struct {
	AnalyticsDays                 int     `yaml:"analytics_days" json:"analytics_days"`
	ClicksDays                    int     `yaml:"clicks_days" json:"clicks_days"`
	PerformanceDays               int     `yaml:"performance_days" json:"performance_days"`
	SessionHours                  int     `yaml:"session_hours" json:"session_hours"`
	LearnedPatternsMinSuccessRate float64 `yaml:"learned_patterns_min_success_rate" json:"learned_patterns_min_success_rate"`
	LearnedPatternsStaleDays      int     `yaml:"learned_patterns_stale_days" json:"learned_patterns_stale_days"`

	// Interval is the cadence at which the scheduler runs the policy
	// table; not named by the distilled spec's field list but required
	// by any running instance, mirroring BaselineConfig.RefreshInterval.
	Interval time.Duration `yaml:"interval" json:"interval"`
}

// BaselineConfig configures the baseline & pattern store job (C9).
type BaselineConfig struct {
	RefreshInterval   time.Duration `yaml:"refresh_interval" json:"refresh_interval"`
	MinEventsPerGroup int           `yaml:"min_events_per_group" json:"min_events_per_group"`

	// LookbackDays bounds how much analytics history a run considers.
	LookbackDays int `yaml:"lookback_days" json:"lookback_days"`

	// SuccessSimilarityThreshold and SuccessMinCount gate which queries
	// are mined as LearnedPattern candidates.
	SuccessSimilarityThreshold float64 `yaml:"success_similarity_threshold" json:"success_similarity_threshold"`
	SuccessMinCount            int     `yaml:"success_min_count" json:"success_min_count"`

	// FailingCategoryThreshold gates which categories emit a
	// PatternSuggestion for operator review.
	FailingCategoryThreshold float64 `yaml:"failing_category_threshold" json:"failing_category_threshold"`

	// LockPath is the cross-process exclusive-run lock file; a run that
	// cannot acquire it skips rather than running concurrently with
	// another instance's scheduled tick.
	LockPath string `yaml:"lock_path" json:"lock_path"`
}

// ServerConfig configures ambient serving concerns not named by the
// distilled spec's component list but required by any running instance:
// transport-agnostic listen address, and the log level.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
	LogLevel   string `yaml:"log_level" json:"log_level"`
	DBPath     string `yaml:"db_path" json:"db_path"`
}

// defaultFacetDimensions mirrors facets_service.py's example vocabulary,
// generalized into a default any storefront can override.
func defaultFacetDimensions() []FacetDimension {
	return []FacetDimension{
		{Name: "color", Values: []string{"black", "white", "red", "blue", "green", "yellow", "grey", "brown", "beige", "pink", "purple", "orange"}},
		{Name: "material", Values: []string{"cotton", "wool", "leather", "polyester", "linen", "silk", "denim", "suede"}},
		{Name: "size", Values: []string{"xs", "s", "m", "l", "xl", "xxl"}},
		{Name: "brand", Values: []string{}},
		{Name: "category", Values: []string{}},
		{Name: "season", Values: []string{"spring", "summer", "autumn", "winter"}},
		{Name: "style", Values: []string{"casual", "formal", "sport", "vintage", "modern"}},
	}
}

// defaultPriceBuckets mirrors facets_service.py's price_ranges table,
// converted from euros to cents.
func defaultPriceBuckets() []PriceBucket {
	cents := func(v int64) *int64 { return &v }
	return []PriceBucket{
		{Label: "$0-25", MinCents: 0, MaxCents: cents(2500)},
		{Label: "$25-50", MinCents: 2500, MaxCents: cents(5000)},
		{Label: "$50-100", MinCents: 5000, MaxCents: cents(10000)},
		{Label: "$100-200", MinCents: 10000, MaxCents: cents(20000)},
		{Label: "$200-500", MinCents: 20000, MaxCents: cents(50000)},
		{Label: "$500+", MinCents: 50000, MaxCents: nil},
	}
}

// NewConfig creates a Config populated with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Embedding: EmbeddingConfig{
			ModelName:             "text-embedding-3-small",
			Dim:                   1536,
			LRUCapacity:           10000,
			ImageMaxDim:           1024,
			ImageTimeout:          5 * time.Second,
			TextWeightByCategory:  map[string]float64{},
			ImageWeightByCategory: map[string]float64{},
			StoreWeightOverrides:  map[string]CategoryWeights{},
			Endpoint:              "http://localhost:11434",
			APIKeyEnv:             "SHOPSEARCH_EMBEDDING_API_KEY",
		},
		Cache: CacheConfig{
			TTLSemantic:   10 * time.Minute,
			TTLFuzzy:      5 * time.Minute,
			TTLAggregates: 1 * time.Hour,
			TTLFacets:     15 * time.Minute,
		},
		Rate: RateConfig{
			OutboundRPS:          10,
			OutboundBurst:        20,
			InboundPerWindow:     120,
			InboundWindowSeconds: 60,
		},
		Search: SearchConfig{
			DefaultSimilarityThreshold: 0.65,
			MaxPageSize:                100,
			FuzzyMinTrigramScore:       0.3,
			FacetDimensions:            defaultFacetDimensions(),
			PriceBuckets:               defaultPriceBuckets(),
		},
		Adaptive: AdaptiveConfig{
			MinImprovementPct:     10,
			MaxStrategiesPerQuery: 3,
		},
		Analytics: AnalyticsConfig{
			BufferSize:    4096,
			WriterCount:   2,
			BatchSize:     100,
			FlushInterval: 5 * time.Second,
		},
		Retention: RetentionConfig{
			AnalyticsDays:                 90,
			ClicksDays:                    90,
			PerformanceDays:               365,
			SessionHours:                  24,
			LearnedPatternsMinSuccessRate: 0.5,
			LearnedPatternsStaleDays:      60,
			Interval:                      6 * time.Hour,
		},
		Baseline: BaselineConfig{
			RefreshInterval:            24 * time.Hour,
			MinEventsPerGroup:          20,
			LookbackDays:               7,
			SuccessSimilarityThreshold: 0.8,
			SuccessMinCount:            5,
			FailingCategoryThreshold:   0.6,
			LockPath:                   defaultBaselineLockPath(),
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   "info",
			DBPath:     defaultDBPath(),
		},
	}
}

// defaultDBPath returns the default SQLite database path.
func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".shopsearch", "shopsearch.db")
	}
	return filepath.Join(home, ".shopsearch", "shopsearch.db")
}

func defaultBaselineLockPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".shopsearch", "baseline.lock")
	}
	return filepath.Join(home, ".shopsearch", "baseline.lock")
}

// GetUserConfigPath returns the path to the user/global configuration
// file, following the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/shopsearch/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/shopsearch/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "shopsearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "shopsearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "shopsearch", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration from the specified directory, applying
// overrides in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/shopsearch/config.yaml)
//  3. Project config (.shopsearch.yaml in dir)
//  4. Environment variables (SHOPSEARCH_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .shopsearch.yaml or
// .shopsearch.yml in dir.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".shopsearch.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".shopsearch.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Embedding
	if other.Embedding.ModelName != "" {
		c.Embedding.ModelName = other.Embedding.ModelName
	}
	if other.Embedding.Dim != 0 {
		c.Embedding.Dim = other.Embedding.Dim
	}
	if other.Embedding.LRUCapacity != 0 {
		c.Embedding.LRUCapacity = other.Embedding.LRUCapacity
	}
	if other.Embedding.ImageMaxDim != 0 {
		c.Embedding.ImageMaxDim = other.Embedding.ImageMaxDim
	}
	if other.Embedding.ImageTimeout != 0 {
		c.Embedding.ImageTimeout = other.Embedding.ImageTimeout
	}
	if len(other.Embedding.TextWeightByCategory) > 0 {
		c.Embedding.TextWeightByCategory = other.Embedding.TextWeightByCategory
	}
	if len(other.Embedding.ImageWeightByCategory) > 0 {
		c.Embedding.ImageWeightByCategory = other.Embedding.ImageWeightByCategory
	}
	if len(other.Embedding.StoreWeightOverrides) > 0 {
		c.Embedding.StoreWeightOverrides = other.Embedding.StoreWeightOverrides
	}
	if other.Embedding.Endpoint != "" {
		c.Embedding.Endpoint = other.Embedding.Endpoint
	}
	if other.Embedding.APIKeyEnv != "" {
		c.Embedding.APIKeyEnv = other.Embedding.APIKeyEnv
	}

	// Cache
	if other.Cache.TTLSemantic != 0 {
		c.Cache.TTLSemantic = other.Cache.TTLSemantic
	}
	if other.Cache.TTLFuzzy != 0 {
		c.Cache.TTLFuzzy = other.Cache.TTLFuzzy
	}
	if other.Cache.TTLAggregates != 0 {
		c.Cache.TTLAggregates = other.Cache.TTLAggregates
	}
	if other.Cache.TTLFacets != 0 {
		c.Cache.TTLFacets = other.Cache.TTLFacets
	}

	// Rate
	if other.Rate.OutboundRPS != 0 {
		c.Rate.OutboundRPS = other.Rate.OutboundRPS
	}
	if other.Rate.OutboundBurst != 0 {
		c.Rate.OutboundBurst = other.Rate.OutboundBurst
	}
	if other.Rate.InboundPerWindow != 0 {
		c.Rate.InboundPerWindow = other.Rate.InboundPerWindow
	}
	if other.Rate.InboundWindowSeconds != 0 {
		c.Rate.InboundWindowSeconds = other.Rate.InboundWindowSeconds
	}

	// Search
	if other.Search.DefaultSimilarityThreshold != 0 {
		c.Search.DefaultSimilarityThreshold = other.Search.DefaultSimilarityThreshold
	}
	if other.Search.MaxPageSize != 0 {
		c.Search.MaxPageSize = other.Search.MaxPageSize
	}
	if other.Search.FuzzyMinTrigramScore != 0 {
		c.Search.FuzzyMinTrigramScore = other.Search.FuzzyMinTrigramScore
	}
	if len(other.Search.FacetDimensions) > 0 {
		c.Search.FacetDimensions = other.Search.FacetDimensions
	}
	if len(other.Search.PriceBuckets) > 0 {
		c.Search.PriceBuckets = other.Search.PriceBuckets
	}

	// Adaptive
	if other.Adaptive.MinImprovementPct != 0 {
		c.Adaptive.MinImprovementPct = other.Adaptive.MinImprovementPct
	}
	if other.Adaptive.MaxStrategiesPerQuery != 0 {
		c.Adaptive.MaxStrategiesPerQuery = other.Adaptive.MaxStrategiesPerQuery
	}

	// Analytics
	if other.Analytics.BufferSize != 0 {
		c.Analytics.BufferSize = other.Analytics.BufferSize
	}
	if other.Analytics.WriterCount != 0 {
		c.Analytics.WriterCount = other.Analytics.WriterCount
	}
	if other.Analytics.BatchSize != 0 {
		c.Analytics.BatchSize = other.Analytics.BatchSize
	}
	if other.Analytics.FlushInterval != 0 {
		c.Analytics.FlushInterval = other.Analytics.FlushInterval
	}

	// Retention
	if other.Retention.AnalyticsDays != 0 {
		c.Retention.AnalyticsDays = other.Retention.AnalyticsDays
	}
	if other.Retention.ClicksDays != 0 {
		c.Retention.ClicksDays = other.Retention.ClicksDays
	}
	if other.Retention.PerformanceDays != 0 {
		c.Retention.PerformanceDays = other.Retention.PerformanceDays
	}
	if other.Retention.SessionHours != 0 {
		c.Retention.SessionHours = other.Retention.SessionHours
	}
	if other.Retention.LearnedPatternsMinSuccessRate != 0 {
		c.Retention.LearnedPatternsMinSuccessRate = other.Retention.LearnedPatternsMinSuccessRate
	}
	if other.Retention.LearnedPatternsStaleDays != 0 {
		c.Retention.LearnedPatternsStaleDays = other.Retention.LearnedPatternsStaleDays
	}
	if other.Retention.Interval != 0 {
		c.Retention.Interval = other.Retention.Interval
	}

	// Baseline
	if other.Baseline.RefreshInterval != 0 {
		c.Baseline.RefreshInterval = other.Baseline.RefreshInterval
	}
	if other.Baseline.MinEventsPerGroup != 0 {
		c.Baseline.MinEventsPerGroup = other.Baseline.MinEventsPerGroup
	}
	if other.Baseline.LookbackDays != 0 {
		c.Baseline.LookbackDays = other.Baseline.LookbackDays
	}
	if other.Baseline.SuccessSimilarityThreshold != 0 {
		c.Baseline.SuccessSimilarityThreshold = other.Baseline.SuccessSimilarityThreshold
	}
	if other.Baseline.SuccessMinCount != 0 {
		c.Baseline.SuccessMinCount = other.Baseline.SuccessMinCount
	}
	if other.Baseline.FailingCategoryThreshold != 0 {
		c.Baseline.FailingCategoryThreshold = other.Baseline.FailingCategoryThreshold
	}
	if other.Baseline.LockPath != "" {
		c.Baseline.LockPath = other.Baseline.LockPath
	}

	// Server
	if other.Server.ListenAddr != "" {
		c.Server.ListenAddr = other.Server.ListenAddr
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.DBPath != "" {
		c.Server.DBPath = other.Server.DBPath
	}
}

// applyEnvOverrides applies SHOPSEARCH_* environment variable overrides,
// the highest-precedence layer. Secrets and endpoints are the expected
// use case; everything else can already be set in YAML.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SHOPSEARCH_EMBEDDING_ENDPOINT"); v != "" {
		c.Embedding.Endpoint = v
	}
	if v := os.Getenv("SHOPSEARCH_EMBEDDING_MODEL"); v != "" {
		c.Embedding.ModelName = v
	}
	if v := os.Getenv("SHOPSEARCH_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("SHOPSEARCH_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("SHOPSEARCH_DB_PATH"); v != "" {
		c.Server.DBPath = v
	}
	if v := os.Getenv("SHOPSEARCH_OUTBOUND_RPS"); v != "" {
		if f, err := parseFloat64(v); err == nil && f > 0 {
			c.Rate.OutboundRPS = f
		}
	}
	if v := os.Getenv("SHOPSEARCH_INBOUND_PER_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Rate.InboundPerWindow = n
		}
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// ResolveCategoryWeights returns the blend weights to use for the given
// store scope and category. A store-specific entry in
// StoreWeightOverrides always wins over the category default — the
// embedding-weight precedence decision recorded alongside this package.
func (c *EmbeddingConfig) ResolveCategoryWeights(storeScope, category string) CategoryWeights {
	if storeScope != "" {
		if w, ok := c.StoreWeightOverrides[storeScope]; ok {
			return w
		}
	}
	text := c.TextWeightByCategory[category]
	image := c.ImageWeightByCategory[category]
	if text == 0 && image == 0 {
		return CategoryWeights{TextWeight: 1, ImageWeight: 0}
	}
	return CategoryWeights{TextWeight: text, ImageWeight: image}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Embedding.Dim <= 0 {
		return fmt.Errorf("embedding.dim must be positive, got %d", c.Embedding.Dim)
	}
	if c.Embedding.LRUCapacity < 0 {
		return fmt.Errorf("embedding.lru_capacity must be non-negative, got %d", c.Embedding.LRUCapacity)
	}

	if c.Cache.TTLSemantic <= 0 || c.Cache.TTLFuzzy <= 0 || c.Cache.TTLAggregates <= 0 || c.Cache.TTLFacets <= 0 {
		return fmt.Errorf("all cache TTLs must be positive")
	}

	if c.Rate.OutboundRPS <= 0 {
		return fmt.Errorf("rate.outbound_rps must be positive, got %f", c.Rate.OutboundRPS)
	}
	if c.Rate.OutboundBurst <= 0 {
		return fmt.Errorf("rate.outbound_burst must be positive, got %d", c.Rate.OutboundBurst)
	}
	if c.Rate.InboundPerWindow <= 0 {
		return fmt.Errorf("rate.inbound_per_window must be positive, got %d", c.Rate.InboundPerWindow)
	}
	if c.Rate.InboundWindowSeconds <= 0 {
		return fmt.Errorf("rate.inbound_window_seconds must be positive, got %d", c.Rate.InboundWindowSeconds)
	}

	if c.Search.DefaultSimilarityThreshold < 0 || c.Search.DefaultSimilarityThreshold > 1 {
		return fmt.Errorf("search.default_similarity_threshold must be between 0 and 1, got %f", c.Search.DefaultSimilarityThreshold)
	}
	if c.Search.MaxPageSize <= 0 || c.Search.MaxPageSize > 100 {
		return fmt.Errorf("search.max_page_size must be between 1 and 100, got %d", c.Search.MaxPageSize)
	}

	if c.Adaptive.MaxStrategiesPerQuery <= 0 {
		return fmt.Errorf("adaptive.max_strategies_per_query must be positive, got %d", c.Adaptive.MaxStrategiesPerQuery)
	}

	if c.Analytics.BufferSize <= 0 {
		return fmt.Errorf("analytics.buffer_size must be positive, got %d", c.Analytics.BufferSize)
	}
	if c.Analytics.WriterCount <= 0 {
		return fmt.Errorf("analytics.writer_count must be positive, got %d", c.Analytics.WriterCount)
	}
	if c.Analytics.BatchSize <= 0 {
		return fmt.Errorf("analytics.batch_size must be positive, got %d", c.Analytics.BatchSize)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
