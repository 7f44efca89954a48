package config

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig      `env:",prefix=SERVER_"`
	Database    DatabaseConfig    `env:",prefix=DB_"`
	Auth        AuthConfig        `env:",prefix=AUTH_"`
	Certificate CertificateConfig `env:",prefix=CERT_"`
	CORS        CORSConfig        `env:",prefix=CORS_"`
	App         AppConfig         `env:",prefix=APP_"`
}

type ServerConfig struct {
	Port         string `env:"PORT,default=8080"`
	Host         string `env:"HOST,default=0.0.0.0"`
	ReadTimeout  int    `env:"READ_TIMEOUT,default=30"`  // seconds
	WriteTimeout int    `env:"WRITE_TIMEOUT,default=30"` // seconds
	H2C          bool   `env:"H2C,default=false"`
}

// DatabaseConfig selects the store. Driver "postgres" uses the discrete
// fields below; driver "sqlite" uses DSN as a file path.
type DatabaseConfig struct {
	Driver   string `env:"DRIVER,default=postgres"`
	DSN      string `env:"DSN"`
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=postgres"`
	Password string `env:"PASSWORD,default=postgres"`
	Name     string `env:"NAME,default=adcert"`
	SSLMode  string `env:"SSLMODE,default=disable"`
	MaxConns int    `env:"MAX_CONNS,default=25"`
	MinConns int    `env:"MIN_CONNS,default=5"`
}

type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET"`
	TokenTTL  int    `env:"TOKEN_TTL_HOURS,default=24"`

	// BootstrapAdminEmail seeds one administrator at startup when no
	// profile with that email exists.
	BootstrapAdminEmail    string `env:"BOOTSTRAP_ADMIN_EMAIL"`
	BootstrapAdminPassword string `env:"BOOTSTRAP_ADMIN_PASSWORD"`
}

type CertificateConfig struct {
	// VerifyBaseURL is the public origin the verification payload points at.
	VerifyBaseURL string `env:"VERIFY_BASE_URL,default=http://localhost:5173"`
	MaxAttempts   int    `env:"MAX_ATTEMPTS,default=5"`
	ValidityDays  int    `env:"VALIDITY_DAYS,default=365"`
}

type CORSConfig struct {
	AllowOrigins []string `env:"ALLOW_ORIGINS,default=http://localhost:5173,http://127.0.0.1:5173"`
}

type AppConfig struct {
	Environment string `env:"ENVIRONMENT,default=development"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	LogFormat   string `env:"LOG_FORMAT,default=text"`
}

// Load reads configs/.env when present and then the process environment.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith processes configuration from an explicit lookuper.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		if c.App.IsProduction() {
			return fmt.Errorf("AUTH_JWT_SECRET is required in production")
		}
		c.Auth.JWTSecret = "default_super_secret_key" // development fallback only
	}
	if c.Certificate.MaxAttempts < 1 {
		return fmt.Errorf("CERT_MAX_ATTEMPTS must be at least 1, got %d", c.Certificate.MaxAttempts)
	}
	if c.Certificate.ValidityDays < 1 {
		return fmt.Errorf("CERT_VALIDITY_DAYS must be at least 1, got %d", c.Certificate.ValidityDays)
	}
	switch strings.ToLower(c.Database.Driver) {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	return nil
}

// GetDatabaseURL returns the PostgreSQL connection URL
func (c *DatabaseConfig) GetDatabaseURL() string {
	if c.DSN != "" {
		return c.DSN
	}
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.Name + "?sslmode=" + c.SSLMode
}

func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}
