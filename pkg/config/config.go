package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Ledger       LedgerConfig
	Password     PasswordConfig
	Idempotency  IdempotencyConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Ledger.resolve(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DONORLEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"DONORLEDGER_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"DONORLEDGER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DONORLEDGER_LOG_WARN_STACK" default:"false"`

	CORSAllowedOrigins []string `envconfig:"DONORLEDGER_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"DONORLEDGER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"DONORLEDGER_DB_DSN"`
	Driver string `envconfig:"DONORLEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DONORLEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"DONORLEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DONORLEDGER_DB_USER"`
	LegacyPassword string `envconfig:"DONORLEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"DONORLEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"DONORLEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DONORLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DONORLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DONORLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DONORLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"DONORLEDGER_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DONORLEDGER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DONORLEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"DONORLEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"DONORLEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DONORLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DONORLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DONORLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DONORLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DONORLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// LedgerConfig describes how the service reaches the XRP Ledger. RPCURL overrides
// the well-known endpoint for Network when set.
type LedgerConfig struct {
	Network        string        `envconfig:"DONORLEDGER_LEDGER_NETWORK" default:"testnet"`
	RPCURL         string        `envconfig:"DONORLEDGER_LEDGER_RPC_URL"`
	SubmitTimeout  time.Duration `envconfig:"DONORLEDGER_LEDGER_SUBMIT_TIMEOUT" default:"20s"`
	QueryTimeout   time.Duration `envconfig:"DONORLEDGER_LEDGER_QUERY_TIMEOUT" default:"5s"`
	WaitTimeout    time.Duration `envconfig:"DONORLEDGER_LEDGER_WAIT_TIMEOUT" default:"15s"`
	PollInterval   time.Duration `envconfig:"DONORLEDGER_LEDGER_POLL_INTERVAL" default:"1s"`
	EscrowDuration time.Duration `envconfig:"DONORLEDGER_LEDGER_ESCROW_DURATION" default:"720h"`

	PlatformAddress string `envconfig:"DONORLEDGER_LEDGER_PLATFORM_ADDRESS"`
	PlatformSecret  string `envconfig:"DONORLEDGER_LEDGER_PLATFORM_SECRET"`
}

// HasPlatformAccount reports whether a fallback signing account is configured.
func (l LedgerConfig) HasPlatformAccount() bool {
	return strings.TrimSpace(l.PlatformAddress) != "" && strings.TrimSpace(l.PlatformSecret) != ""
}

func (l *LedgerConfig) resolve() error {
	if strings.TrimSpace(l.RPCURL) != "" {
		return nil
	}
	endpoint, ok := ledgerNetworkURLs[strings.ToLower(strings.TrimSpace(l.Network))]
	if !ok {
		return fmt.Errorf("unsupported ledger network %q", l.Network)
	}
	l.RPCURL = endpoint
	return nil
}

// PasswordConfig tunes the Argon2id parameters used for account passwords.
type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"DONORLEDGER_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"DONORLEDGER_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"DONORLEDGER_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"DONORLEDGER_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"DONORLEDGER_ARGON_KEY_LEN" default:"32"`
}

type IdempotencyConfig struct {
	DonationTTL time.Duration `envconfig:"DONORLEDGER_IDEMPOTENCY_DONATION_TTL" default:"168h"`
	DefaultTTL  time.Duration `envconfig:"DONORLEDGER_IDEMPOTENCY_DEFAULT_TTL" default:"24h"`
}

type RateLimitConfig struct {
	DonationWindow  time.Duration `envconfig:"DONORLEDGER_RATE_LIMIT_DONATION_WINDOW" default:"1m"`
	DonationIPLimit int           `envconfig:"DONORLEDGER_RATE_LIMIT_DONATION_IP_LIMIT" default:"30"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"DONORLEDGER_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"DONORLEDGER_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"DONORLEDGER_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"DONORLEDGER_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"DONORLEDGER_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DonationsTopic string `envconfig:"DONORLEDGER_PUBSUB_DONATIONS_TOPIC" default:"dl-donation-events"`
	// CampaignsTopic defaults to DonationsTopic when unset.
	CampaignsTopic string `envconfig:"DONORLEDGER_PUBSUB_CAMPAIGNS_TOPIC"`
}

func (p PubSubConfig) CampaignTopic() string {
	if p.CampaignsTopic != "" {
		return p.CampaignsTopic
	}
	return p.DonationsTopic
}

// Topics lists every distinct topic the publisher writes to.
func (p PubSubConfig) Topics() []string {
	topics := []string{p.DonationsTopic}
	if campaign := p.CampaignTopic(); campaign != p.DonationsTopic {
		topics = append(topics, campaign)
	}
	return topics
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"DONORLEDGER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"DONORLEDGER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"DONORLEDGER_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"DONORLEDGER_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval           time.Duration `envconfig:"DONORLEDGER_CRON_INTERVAL" default:"5m"`
	LockTTL            time.Duration `envconfig:"DONORLEDGER_CRON_LOCK_TTL" default:"4m"`
	ReconcileBatchSize int           `envconfig:"DONORLEDGER_CRON_RECONCILE_BATCH_SIZE" default:"100"`
	// Jobs limits the worker to the named jobs; empty runs all of them.
	Jobs []string `envconfig:"DONORLEDGER_CRON_JOBS"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = defaultSQLiteDSN
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
