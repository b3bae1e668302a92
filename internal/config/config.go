package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full application configuration. Every field is
// environment-driven; nested keys map to underscore-separated variables
// (for example stages.lid_endpoints -> STAGES_LID_ENDPOINTS).
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Stages   StagesConfig   `mapstructure:"stages"`
	Compute  ComputeConfig  `mapstructure:"compute"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port      string `mapstructure:"port"`
	JWTSecret string `mapstructure:"jwt_secret"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // sqlite or mysql
	DSN    string `mapstructure:"dsn"`
}

// StagesConfig carries the per-stage inference endpoint lists and feature
// flags. Endpoint lists are comma-separated to enable round-robin fan-out.
type StagesConfig struct {
	LIDEndpoints      string `mapstructure:"lid_endpoints"`
	DenoiseEndpoints  string `mapstructure:"denoise_endpoints"`
	IVREndpoints      string `mapstructure:"ivr_endpoints"`
	STTEndpoint       string `mapstructure:"stt_endpoint"`
	LLMEndpoint       string `mapstructure:"llm_endpoint"`
	TranslateEndpoint string `mapstructure:"translate_endpoint"`
	DenoiseEnabled    bool   `mapstructure:"denoise_enabled"`
	IVREnabled        bool   `mapstructure:"ivr_enabled"`
	PoolSize          int    `mapstructure:"pool_size"`
}

// ComputeConfig configures the container lifecycle mediator.
type ComputeConfig struct {
	MediatorURL   string        `mapstructure:"mediator_url"`
	WarmupWait    time.Duration `mapstructure:"warmup_wait"`
	ReadyTimeout  time.Duration `mapstructure:"ready_timeout"`
	UseReadyProbe bool          `mapstructure:"use_ready_probe"`
}

// PathsConfig holds the audio storage locations.
type PathsConfig struct {
	IntakeRoot  string `mapstructure:"intake_root"`
	WorkingCopy string `mapstructure:"working_copy"`
}

// PipelineConfig holds the loop timings and language policy.
type PipelineConfig struct {
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	DrainInterval      time.Duration `mapstructure:"drain_interval"`
	RefreshInterval    time.Duration `mapstructure:"refresh_interval"`
	SupportedLanguages string        `mapstructure:"supported_languages"`
	DrainInstances     int           `mapstructure:"drain_instances"`
}

// AuditConfig configures the downstream auditing UI integration.
type AuditConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// IngestConfig holds the external metadata-ingestion collaborator URLs.
// Empty URLs disable the corresponding trigger.
type IngestConfig struct {
	CallMetadataURL  string `mapstructure:"call_metadata_url"`
	TradeMetadataURL string `mapstructure:"trade_metadata_url"`
}

// Load reads configuration from the environment with sane defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.jwt_secret", "callpipe-secret-key")
	v.SetDefault("server.api_key", "callpipe-api-key")
	v.SetDefault("server.api_secret", "callpipe-api-secret")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "callpipe.db")
	v.SetDefault("stages.lid_endpoints", "http://localhost:9001/lid")
	v.SetDefault("stages.denoise_endpoints", "http://localhost:9002/denoise")
	v.SetDefault("stages.ivr_endpoints", "http://localhost:9003/ivr")
	v.SetDefault("stages.stt_endpoint", "http://localhost:9004/stt")
	v.SetDefault("stages.llm_endpoint", "http://localhost:9005/llm")
	v.SetDefault("stages.translate_endpoint", "http://localhost:9006/translate")
	v.SetDefault("stages.denoise_enabled", false)
	v.SetDefault("stages.ivr_enabled", false)
	v.SetDefault("stages.pool_size", 8)
	v.SetDefault("compute.mediator_url", "http://localhost:9100")
	v.SetDefault("compute.warmup_wait", 45*time.Second)
	v.SetDefault("compute.ready_timeout", 3*time.Minute)
	v.SetDefault("compute.use_ready_probe", false)
	v.SetDefault("paths.intake_root", "/data/intake")
	v.SetDefault("paths.working_copy", "/data/lid")
	v.SetDefault("pipeline.poll_interval", 30*time.Second)
	v.SetDefault("pipeline.drain_interval", 10*time.Second)
	v.SetDefault("pipeline.refresh_interval", time.Minute)
	v.SetDefault("pipeline.supported_languages", "en,hi")
	v.SetDefault("pipeline.drain_instances", 1)
	v.SetDefault("audit.webhook_url", "")
	v.SetDefault("ingest.call_metadata_url", "")
	v.SetDefault("ingest.trade_metadata_url", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// EndpointList splits a comma-separated endpoint option.
func EndpointList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LanguageSet turns the supported-language option into a lookup set.
func LanguageSet(raw string) map[string]bool {
	set := make(map[string]bool)
	for _, l := range EndpointList(raw) {
		set[strings.ToLower(l)] = true
	}
	return set
}
