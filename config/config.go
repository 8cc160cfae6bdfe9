package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the lesson planner.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Search    SearchConfig    `mapstructure:"search"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Wizard    WizardConfig    `mapstructure:"wizard"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogMode  string `mapstructure:"log_mode"` // dev or prod
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	AllowOrigins []string      `mapstructure:"allow_origins"`
	StepTimeout  time.Duration `mapstructure:"step_timeout"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Provider  string                 `mapstructure:"provider"` // key into Providers
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type           string        `mapstructure:"type"` // openai, gemini
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Model          string        `mapstructure:"model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// LLMRoutingConfig picks the model per pipeline stage. Empty values use the
// provider default model.
type LLMRoutingConfig struct {
	Analysis  string `mapstructure:"analysis"`
	Retrieval string `mapstructure:"retrieval"`
	Search    string `mapstructure:"search"`
	Synthesis string `mapstructure:"synthesis"`
}

// Active returns the selected provider configuration.
func (c LLMConfig) Active() (LLMProvider, error) {
	name := strings.TrimSpace(c.Provider)
	if name == "" && len(c.Providers) == 1 {
		for k := range c.Providers {
			name = k
		}
	}
	p, ok := c.Providers[name]
	if !ok {
		return LLMProvider{}, fmt.Errorf("llm.provider %q not found in llm.providers", name)
	}
	if strings.TrimSpace(p.Type) == "" {
		p.Type = name
	}
	return p, nil
}

func (c LLMConfig) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("llm.providers must not be empty")
	}
	p, err := c.Active()
	if err != nil {
		return err
	}
	switch p.Type {
	case "openai", "gemini":
	default:
		return fmt.Errorf("llm provider type %q is not supported", p.Type)
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return fmt.Errorf("llm temperature must be within [0,2]")
	}
	return nil
}

// SourceConfig describes one knowledge source for the document retriever.
type SourceConfig struct {
	Path   string `mapstructure:"path"`
	Column string `mapstructure:"column"`
	Label  string `mapstructure:"label"`
}

// RetrievalConfig controls the document retriever.
type RetrievalConfig struct {
	Sources        map[string]SourceConfig `mapstructure:"sources"`
	TopK           int                     `mapstructure:"top_k"`
	ChunkSize      int                     `mapstructure:"chunk_size"`
	ChunkOverlap   int                     `mapstructure:"chunk_overlap"`
	RefreshCron    string                  `mapstructure:"refresh_cron"`
	RefreshMaxAge  time.Duration           `mapstructure:"refresh_max_age"`
	EmbeddingCache bool                    `mapstructure:"embedding_cache"`
	EmbeddingTTL   time.Duration           `mapstructure:"embedding_ttl"`
	EmbedBatchSize int                     `mapstructure:"embed_batch_size"`
	WarmOnStartup  bool                    `mapstructure:"warm_on_startup"`
	WarmTimeout    time.Duration           `mapstructure:"warm_timeout"`
	BuildTimeout   time.Duration           `mapstructure:"build_timeout"`
}

// Normalize applies defaults for unset retrieval values.
func (c RetrievalConfig) Normalize() RetrievalConfig {
	if c.TopK <= 0 {
		c.TopK = 4
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 10
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = 64
	}
	if c.WarmTimeout <= 0 {
		c.WarmTimeout = 2 * time.Minute
	}
	if c.BuildTimeout <= 0 {
		c.BuildTimeout = 2 * time.Minute
	}
	for name, src := range c.Sources {
		if strings.TrimSpace(src.Column) == "" {
			src.Column = "content"
		}
		if strings.TrimSpace(src.Label) == "" {
			src.Label = name
		}
		c.Sources[name] = src
	}
	return c
}

func (c RetrievalConfig) Validate() error {
	for name, src := range c.Sources {
		if strings.TrimSpace(src.Path) == "" {
			return fmt.Errorf("retrieval.sources.%s.path required", name)
		}
	}
	return nil
}

// SearchConfig contains web search settings
type SearchConfig struct {
	Provider      string             `mapstructure:"provider"` // serper or brave
	BraveAPIKey   string             `mapstructure:"brave_api_key"`
	SerperAPIKey  string             `mapstructure:"serper_api_key"`
	MaxResults    int                `mapstructure:"max_results"`
	Timeout       time.Duration      `mapstructure:"timeout"`
	Retries       int                `mapstructure:"retries"`
	Fetcher       string             `mapstructure:"fetcher"` // http or chromedp
	FetchTop      int                `mapstructure:"fetch_top"`
	FetchTimeout  time.Duration      `mapstructure:"fetch_timeout"`
	FetchMaxChars int                `mapstructure:"fetch_max_chars"`
	Domains       DomainPolicyConfig `mapstructure:"domains"`
}

// Normalize applies defaults for unset search values.
func (c SearchConfig) Normalize() SearchConfig {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		switch {
		case c.SerperAPIKey != "":
			c.Provider = "serper"
		case c.BraveAPIKey != "":
			c.Provider = "brave"
		}
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if strings.TrimSpace(c.Fetcher) == "" {
		c.Fetcher = "http"
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 15 * time.Second
	}
	if c.FetchMaxChars <= 0 {
		c.FetchMaxChars = 4000
	}
	c.Domains = c.Domains.Normalize()
	return c
}

func (c SearchConfig) Validate() error {
	switch c.Provider {
	case "":
	case "serper":
		if strings.TrimSpace(c.SerperAPIKey) == "" {
			return fmt.Errorf("search.serper_api_key required for serper provider")
		}
	case "brave":
		if strings.TrimSpace(c.BraveAPIKey) == "" {
			return fmt.Errorf("search.brave_api_key required for brave provider")
		}
	default:
		return fmt.Errorf("search.provider %q is not supported", c.Provider)
	}
	if c.FetchTop < 0 {
		return fmt.Errorf("search.fetch_top cannot be negative")
	}
	return c.Domains.Validate()
}

// APIKey returns the key for the configured provider.
func (c SearchConfig) APIKey() string {
	if c.Provider == "brave" {
		return c.BraveAPIKey
	}
	return c.SerperAPIKey
}

// WorkflowConfig tunes the orchestrator.
type WorkflowConfig struct {
	AgentTimeout         time.Duration `mapstructure:"agent_timeout"`
	ParallelEvidence     bool          `mapstructure:"parallel_evidence"`
	ConfidenceFloor      float64       `mapstructure:"confidence_floor"`
	Locale               string        `mapstructure:"locale"`
	FallbackMessage      string        `mapstructure:"fallback_message"`
	// Nil temperatures take the defaults; an explicit 0 is kept.
	AnalysisTemperature  *float64 `mapstructure:"analysis_temperature"`
	SynthesisTemperature *float64 `mapstructure:"synthesis_temperature"`
}

// Normalize applies defaults for unset workflow values.
func (c WorkflowConfig) Normalize() WorkflowConfig {
	if c.AgentTimeout <= 0 {
		c.AgentTimeout = 60 * time.Second
	}
	if c.ConfidenceFloor <= 0 {
		c.ConfidenceFloor = 0.5
	}
	c.Locale = strings.ToLower(strings.TrimSpace(c.Locale))
	if c.Locale == "" {
		c.Locale = "en"
	}
	if c.AnalysisTemperature == nil {
		c.AnalysisTemperature = floatPtr(0.1)
	}
	if c.SynthesisTemperature == nil {
		c.SynthesisTemperature = floatPtr(0.4)
	}
	return c
}

func floatPtr(v float64) *float64 { return &v }

func (c WorkflowConfig) Validate() error {
	if c.ConfidenceFloor < 0.1 || c.ConfidenceFloor > 1 {
		return fmt.Errorf("workflow.confidence_floor must be within [0.1,1]")
	}
	for name, t := range map[string]*float64{"analysis_temperature": c.AnalysisTemperature, "synthesis_temperature": c.SynthesisTemperature} {
		if t != nil && (*t < 0 || *t > 2) {
			return fmt.Errorf("workflow.%s must be within [0,2]", name)
		}
	}
	return nil
}

// WizardConfig controls how sessions are turned into workflow context.
type WizardConfig struct {
	HistoryTurns int `mapstructure:"history_turns"`
}

// Normalize applies defaults for unset wizard values.
func (c WizardConfig) Normalize() WizardConfig {
	if c.HistoryTurns <= 0 {
		c.HistoryTurns = 6
	}
	return c
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"` // memory, redis, postgres
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

func (s StorageConfig) Validate() error {
	switch s.Backend {
	case "", "memory":
		return nil
	case "redis":
		return s.Redis.Validate()
	case "postgres":
		return s.Postgres.Validate()
	default:
		return fmt.Errorf("storage.backend %q is not supported", s.Backend)
	}
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host       string        `mapstructure:"host"`
	Port       string        `mapstructure:"port"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	Timeout    time.Duration `mapstructure:"timeout"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// Configured reports whether enough settings exist to dial Redis.
func (r RedisConfig) Configured() bool {
	return strings.TrimSpace(r.Host) != "" && strings.TrimSpace(r.Port) != ""
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a connection string from URL or discrete fields.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// TelemetryConfig contains tracing settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_mode", "dev")
	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":10001")
	v.SetDefault("server.allow_origins", []string{"*"})
	v.SetDefault("server.step_timeout", "3m")
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.providers.openai.type", "openai")
	v.SetDefault("llm.providers.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.providers.openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("llm.providers.openai.api_key", "")
	v.SetDefault("llm.providers.openai.temperature", 0.2)
	v.SetDefault("llm.providers.openai.timeout", "60s")
	v.SetDefault("retrieval.top_k", 4)
	v.SetDefault("retrieval.chunk_size", 1000)
	v.SetDefault("retrieval.chunk_overlap", 100)
	v.SetDefault("search.serper_api_key", "")
	v.SetDefault("search.brave_api_key", "")
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.retries", 2)
	v.SetDefault("search.fetcher", "http")
	v.SetDefault("workflow.agent_timeout", "60s")
	v.SetDefault("workflow.confidence_floor", 0.5)
	v.SetDefault("workflow.locale", "en")
	v.SetDefault("wizard.history_turns", 6)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.redis.host", "")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.postgres.url", "")
	v.SetDefault("telemetry.service_name", "lessonplanner")
}

// LoadConfig loads config from file and LESSONPLANNER_* environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("LESSONPLANNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Retrieval = cfg.Retrieval.Normalize()
	cfg.Search = cfg.Search.Normalize()
	cfg.Workflow = cfg.Workflow.Normalize()
	cfg.Wizard = cfg.Wizard.Normalize()

	if err := cfg.LLM.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Retrieval.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Search.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Workflow.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Storage.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
