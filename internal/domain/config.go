package domain

// DocTypeConfig captures the per-document-type variation consumed by the
// generic pipeline: ensemble shape, risk cut points, fallback policy, and
// the fields that form the duplicate-submission uniqueness key.
type DocTypeConfig struct {
	// ModelIDs are the scoring artifacts for this type, in ensemble
	// order. One entry for single-model types, two for ensembles.
	ModelIDs []string `json:"modelIds"`

	// EnsembleWeights align with ModelIDs and sum to 1.0.
	EnsembleWeights []float64 `json:"ensembleWeights"`

	// RiskCutPoints are the ascending LOW/MEDIUM/HIGH boundaries.
	// score < [0] => LOW, < [1] => MEDIUM, < [2] => HIGH, else CRITICAL.
	RiskCutPoints [3]float64 `json:"riskCutPoints"`

	// AllowFallback permits the deterministic heuristic score when the
	// model artifact is missing. Types without fallback treat a missing
	// artifact as a fatal configuration error.
	AllowFallback bool `json:"allowFallback"`

	// UniquenessFields are the record fields forming the
	// duplicate-submission key (plus the entity name).
	UniquenessFields []string `json:"uniquenessFields"`
}

// DefaultDocTypeConfigs returns the built-in per-type configuration.
//
// Check and bank statement carry hard financial exposure, so they refuse
// to score without their trained artifacts. Paystub and money order may
// fall back to the heuristic.
func DefaultDocTypeConfigs() map[DocType]DocTypeConfig {
	return map[DocType]DocTypeConfig{
		DocTypeCheck: {
			ModelIDs:         []string{"check-ridge-v2"},
			EnsembleWeights:  []float64{1.0},
			RiskCutPoints:    [3]float64{0.3, 0.7, 0.9},
			AllowFallback:    false,
			UniquenessFields: []string{"check_number", "payer_name"},
		},
		DocTypeMoneyOrder: {
			ModelIDs:         []string{"moneyorder-ridge-v1"},
			EnsembleWeights:  []float64{1.0},
			RiskCutPoints:    [3]float64{0.3, 0.7, 0.9},
			AllowFallback:    true,
			UniquenessFields: []string{"serial_number", "issuer"},
		},
		DocTypePaystub: {
			ModelIDs:         []string{"paystub-ridge-v3", "paystub-gbr-v3"},
			EnsembleWeights:  []float64{0.4, 0.6},
			RiskCutPoints:    [3]float64{0.3, 0.6, 0.85},
			AllowFallback:    true,
			UniquenessFields: []string{"employer_name", "employee_name", "pay_date"},
		},
		DocTypeBankStatement: {
			ModelIDs:         []string{"statement-ridge-v2", "statement-gbr-v2"},
			EnsembleWeights:  []float64{0.4, 0.6},
			RiskCutPoints:    [3]float64{0.3, 0.6, 0.85},
			AllowFallback:    false,
			UniquenessFields: []string{"account_number", "statement_period_end"},
		},
	}
}

// Config holds the complete Kite configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines infrastructure choices
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Advisor    AdvisorConfig    `json:"advisor"`

	// AdvisoryTimeoutMs bounds the external advisory call.
	AdvisoryTimeoutMs int `json:"advisoryTimeoutMs"`

	// DedupeTTLDays is how long duplicate-submission keys are retained.
	DedupeTTLDays int `json:"dedupeTtlDays"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels.
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis.
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for the community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kite.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Advisor: AdvisorConfig{
			Type: "matrix",
		},
		AdvisoryTimeoutMs: 10000,
		DedupeTTLDays:     30,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kite",
		},
	}
}

// ProConfig returns a configuration for the pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kite",
	}
	cfg.Cache = CacheConfig{
		Type:      "redis",
		RedisAddr: "localhost:6379",
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
