package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Exchange     ExchangeConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Exchange.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"OPENBOOK_APP_ENV" required:"true"`
	Port         string `envconfig:"OPENBOOK_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"OPENBOOK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"OPENBOOK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"OPENBOOK_DB_DSN"`
	Driver string `envconfig:"OPENBOOK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"OPENBOOK_DB_HOST"`
	LegacyPort     int    `envconfig:"OPENBOOK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"OPENBOOK_DB_USER"`
	LegacyPassword string `envconfig:"OPENBOOK_DB_PASSWORD"`
	LegacyName     string `envconfig:"OPENBOOK_DB_NAME"`
	LegacySSLMode  string `envconfig:"OPENBOOK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"OPENBOOK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"OPENBOOK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"OPENBOOK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"OPENBOOK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"OPENBOOK_REDIS_URL" required:"true"`
	PoolSize     int           `envconfig:"OPENBOOK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"OPENBOOK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"OPENBOOK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"OPENBOOK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"OPENBOOK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"OPENBOOK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"OPENBOOK_JWT_ISSUER" default:"openbook"`
	ExpirationMinutes int    `envconfig:"OPENBOOK_JWT_EXPIRATION_MINUTES" default:"1440"`
}

// ExchangeConfig carries the trading constants and the bootstrap admin seed.
type ExchangeConfig struct {
	FeeRate           decimal.Decimal `envconfig:"OPENBOOK_FEE_RATE" default:"0.02"`
	LiquidityDefault  decimal.Decimal `envconfig:"OPENBOOK_LIQUIDITY_DEFAULT" default:"1000"`
	LiquidityMin      decimal.Decimal `envconfig:"OPENBOOK_LIQUIDITY_MIN" default:"100"`
	AnalyticsTZ       string          `envconfig:"OPENBOOK_ANALYTICS_TZ" default:"UTC"`
	AdminEmail        string          `envconfig:"OPENBOOK_ADMIN_EMAIL"`
	AdminUsername     string          `envconfig:"OPENBOOK_ADMIN_USERNAME"`
	AdminPasswordHash string          `envconfig:"OPENBOOK_ADMIN_PASSWORD_HASH"`
	AdminCredit       decimal.Decimal `envconfig:"OPENBOOK_ADMIN_BOOTSTRAP_CREDIT" default:"0"`
}

func (e ExchangeConfig) validate() error {
	if e.FeeRate.IsNegative() || e.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("fee rate must be in [0, 1), got %s", e.FeeRate)
	}
	if e.LiquidityMin.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("minimum liquidity must be positive, got %s", e.LiquidityMin)
	}
	if e.LiquidityDefault.LessThan(e.LiquidityMin) {
		return fmt.Errorf("default liquidity %s below minimum %s", e.LiquidityDefault, e.LiquidityMin)
	}
	if _, err := time.LoadLocation(e.AnalyticsTZ); err != nil {
		return fmt.Errorf("invalid analytics timezone %q: %w", e.AnalyticsTZ, err)
	}
	return nil
}

// Location returns the timezone analytics windows are computed in.
func (e ExchangeConfig) Location() *time.Location {
	loc, err := time.LoadLocation(e.AnalyticsTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"OPENBOOK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"OPENBOOK_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
