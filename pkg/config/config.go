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
	Chain        ChainConfig
	Settlement   SettlementConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CREDITORACLE_APP_ENV" required:"true"`
	Port         string `envconfig:"CREDITORACLE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CREDITORACLE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CREDITORACLE_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"CREDITORACLE_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CREDITORACLE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CREDITORACLE_DB_DSN"`
	Driver string `envconfig:"CREDITORACLE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CREDITORACLE_DB_HOST"`
	LegacyPort     int    `envconfig:"CREDITORACLE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CREDITORACLE_DB_USER"`
	LegacyPassword string `envconfig:"CREDITORACLE_DB_PASSWORD"`
	LegacyName     string `envconfig:"CREDITORACLE_DB_NAME"`
	LegacySSLMode  string `envconfig:"CREDITORACLE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CREDITORACLE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CREDITORACLE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CREDITORACLE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CREDITORACLE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// Configured reports whether a durable store can be attempted at all.
// When false the ledger factory falls back to the in-memory store.
func (db DBConfig) Configured() bool {
	return db.DSN != "" || (db.LegacyHost != "" && db.LegacyUser != "" && db.LegacyName != "")
}

type RedisConfig struct {
	URL          string        `envconfig:"CREDITORACLE_REDIS_URL"`
	Address      string        `envconfig:"CREDITORACLE_REDIS_ADDR"`
	Password     string        `envconfig:"CREDITORACLE_REDIS_PASSWORD"`
	DB           int           `envconfig:"CREDITORACLE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CREDITORACLE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CREDITORACLE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CREDITORACLE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CREDITORACLE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CREDITORACLE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Configured reports whether a redis endpoint was provided. The API binary
// runs without redis; the settle worker requires it for its run lock.
func (r RedisConfig) Configured() bool {
	return r.URL != "" || r.Address != ""
}

type ChainConfig struct {
	RPCURL           string        `envconfig:"CREDITORACLE_CHAIN_RPC_URL"`
	ContractAddress  string        `envconfig:"CREDITORACLE_CHAIN_CONTRACT_ADDRESS"`
	OraclePrivateKey string        `envconfig:"CREDITORACLE_CHAIN_ORACLE_PRIVATE_KEY"`
	ChainID          int64         `envconfig:"CREDITORACLE_CHAIN_ID" default:"11155111"`
	ConfirmTimeout   time.Duration `envconfig:"CREDITORACLE_CHAIN_CONFIRM_TIMEOUT" default:"5m"`
}

// CanSign reports whether the settlement submitter can be constructed.
func (c ChainConfig) CanSign() bool {
	return c.RPCURL != "" && c.ContractAddress != "" && c.OraclePrivateKey != ""
}

// CanRead reports whether read-only contract calls are possible.
func (c ChainConfig) CanRead() bool {
	return c.RPCURL != "" && c.ContractAddress != ""
}

type SettlementConfig struct {
	Interval time.Duration `envconfig:"CREDITORACLE_SETTLE_INTERVAL" default:"1h"`
	LockKey  string        `envconfig:"CREDITORACLE_SETTLE_LOCK_KEY" default:"creditoracle:settle:lock"`
	LockTTL  time.Duration `envconfig:"CREDITORACLE_SETTLE_LOCK_TTL" default:"30m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CREDITORACLE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CREDITORACLE_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" || !db.Configured() {
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
