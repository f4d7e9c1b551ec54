// Package config loads and validates the store service configuration from a
// TOML file. Secrets (database and identity-provider credentials) may be
// overridden through environment variables so the config file can be checked
// in without them.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// ResolutionConfig holds tenant-resolution configuration.
type ResolutionConfig struct {
	Strategy         string `toml:"strategy"`           // header | host | composite
	HeaderName       string `toml:"header_name"`        // request header carrying the tenant key
	DefaultTenantKey string `toml:"default_tenant_key"` // reserved tenant used when resolution fails
}

// MigrationConfig holds the locations of the migration script sets.
type MigrationConfig struct {
	RegistryDir string `toml:"registry_dir"` // scripts for the registry (public) schema
	TenantDir   string `toml:"tenant_dir"`   // scripts applied to every tenant schema
}

// IdentityConfig holds the external identity provider configuration.
type IdentityConfig struct {
	BaseURL       string `toml:"base_url"`
	Realm         string `toml:"realm"`
	AdminUser     string `toml:"admin_user"`
	AdminPassword string `toml:"-"` // from STORESRV_IDP_PASSWORD
	AdminRole     string `toml:"admin_role"` // role granted to the store admin user
}

// StoreDefaults holds the configuration applied to every newly provisioned
// store.
type StoreDefaults struct {
	Currency string   `toml:"currency"`
	Locale   string   `toml:"locale"`
	Plan     string   `toml:"plan"`
	Features []string `toml:"features"`
}

// ConfigParam holds all configuration parameters for the store service.
type ConfigParam struct {
	FormatVersion string `toml:"format_version"`

	ServerHostName     string `toml:"server_hostname"`
	ServerPort         string `toml:"server_port"`
	HandleCORS         bool   `toml:"handle_cors"`
	MaxRequestBodySize int64  `toml:"max_request_body_size"`

	Resolution ResolutionConfig `toml:"resolution"`
	Migrations MigrationConfig  `toml:"migrations"`
	Identity   IdentityConfig   `toml:"identity"`
	Defaults   StoreDefaults    `toml:"defaults"`

	DB struct {
		Host     string `toml:"host"`
		Port     int    `toml:"port"`
		DBName   string `toml:"dbname"`
		User     string `toml:"user"`
		Password string `toml:"password"` // overridden by STORESRV_DB_PASSWORD when set
		SSLMode  string `toml:"sslmode"`
	} `toml:"db"`
}

// Version is the supported config file format version.
const Version = "0.1"

var cfg *ConfigParam

// Config returns the current configuration.
func Config() *ConfigParam {
	return cfg
}

// DSN returns the database connection string.
func (c *ConfigParam) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.DBName, c.DB.SSLMode)
}

// RegistryDSN returns the DSN for the store registry database.
func RegistryDSN() string {
	return cfg.DSN()
}

// LoadConfig loads the configuration from a file and applies environment
// overrides for secrets.
func LoadConfig(filename string) error {
	if filename == "" {
		return fmt.Errorf("config filename is required")
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	cfg = &ConfigParam{}
	if _, err := toml.Decode(string(content), cfg); err != nil {
		return fmt.Errorf("error parsing config file: %v", err)
	}

	// .env is optional; explicit env vars still win.
	_ = godotenv.Load()
	if v := os.Getenv("STORESRV_DB_PASSWORD"); v != "" {
		cfg.DB.Password = v
	}
	if v := os.Getenv("STORESRV_IDP_PASSWORD"); v != "" {
		cfg.Identity.AdminPassword = v
	}

	if err := ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}

	return nil
}

// ValidateConfig checks that all required configuration values are present
// and consistent.
func ValidateConfig(cfg *ConfigParam) error {
	if err := validateFormatVersion(cfg); err != nil {
		return err
	}
	if err := validateServerConfig(cfg); err != nil {
		return err
	}
	if err := validateResolutionConfig(cfg); err != nil {
		return err
	}
	if err := validateMigrationConfig(cfg); err != nil {
		return err
	}
	if err := validateIdentityConfig(cfg); err != nil {
		return err
	}
	if err := validateDefaults(cfg); err != nil {
		return err
	}
	return validateDBConfig(cfg)
}

func validateFormatVersion(cfg *ConfigParam) error {
	if cfg.FormatVersion != Version {
		return fmt.Errorf("unsupported config file format version: %s", cfg.FormatVersion)
	}
	return nil
}

func validateServerConfig(cfg *ConfigParam) error {
	if cfg.ServerPort == "" {
		return fmt.Errorf("server_port is required")
	}
	if cfg.MaxRequestBodySize <= 0 {
		cfg.MaxRequestBodySize = 1 << 20
	}
	return nil
}

func validateResolutionConfig(cfg *ConfigParam) error {
	switch cfg.Resolution.Strategy {
	case "header", "host", "composite":
	case "":
		cfg.Resolution.Strategy = "composite"
	default:
		return fmt.Errorf("unknown resolution.strategy: %s", cfg.Resolution.Strategy)
	}
	if cfg.Resolution.HeaderName == "" {
		cfg.Resolution.HeaderName = "X-Store-Key"
	}
	if cfg.Resolution.DefaultTenantKey == "" {
		return fmt.Errorf("resolution.default_tenant_key is required")
	}
	return nil
}

func validateMigrationConfig(cfg *ConfigParam) error {
	if cfg.Migrations.RegistryDir == "" {
		return fmt.Errorf("migrations.registry_dir is required")
	}
	if cfg.Migrations.TenantDir == "" {
		return fmt.Errorf("migrations.tenant_dir is required")
	}
	return nil
}

func validateIdentityConfig(cfg *ConfigParam) error {
	if cfg.Identity.BaseURL == "" {
		return fmt.Errorf("identity.base_url is required")
	}
	if cfg.Identity.Realm == "" {
		return fmt.Errorf("identity.realm is required")
	}
	if cfg.Identity.AdminUser == "" {
		return fmt.Errorf("identity.admin_user is required")
	}
	if cfg.Identity.AdminRole == "" {
		cfg.Identity.AdminRole = "store-admin"
	}
	return nil
}

func validateDefaults(cfg *ConfigParam) error {
	if cfg.Defaults.Currency == "" {
		cfg.Defaults.Currency = "USD"
	}
	if cfg.Defaults.Locale == "" {
		cfg.Defaults.Locale = "en-US"
	}
	if cfg.Defaults.Plan == "" {
		cfg.Defaults.Plan = "standard"
	}
	return nil
}

func validateDBConfig(cfg *ConfigParam) error {
	if cfg.DB.Host == "" {
		return fmt.Errorf("db.host is required")
	}
	if cfg.DB.Port <= 0 {
		return fmt.Errorf("db.port must be positive")
	}
	if cfg.DB.DBName == "" {
		return fmt.Errorf("db.dbname is required")
	}
	if cfg.DB.User == "" {
		return fmt.Errorf("db.user is required")
	}
	if cfg.DB.Password == "" {
		return fmt.Errorf("db.password is required")
	}
	if cfg.DB.SSLMode == "" {
		return fmt.Errorf("db.sslmode is required")
	}
	return nil
}

var isTest = false

// IsTest reports whether the service is running under test configuration.
func IsTest() bool {
	return isTest
}

// SetTestMode toggles test configuration mode.
func SetTestMode(test bool) {
	isTest = test
}
