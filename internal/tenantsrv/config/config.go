// Package config loads and validates the tenantd server configuration from a
// TOML file. Database credentials may be overridden through the environment
// (optionally via a .env file) so config files can stay free of secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Version is the configuration file format version this build understands.
const Version = "0.1.0"

// Resolution modes for deriving a tenant from an inbound request.
const (
	ModeHeader    = "header"
	ModeSubdomain = "subdomain"
	ModeDomain    = "domain"
)

// DefaultTenantURLPrefix is the reserved path space tenant-scoped routes are
// mounted under. Deployments should override it with their own hard-to-guess
// value so public routes cannot collide with it.
const DefaultTenantURLPrefix = "/__tenant__"

// TenancyConfig holds tenant-resolution and schema-scoping options.
type TenancyConfig struct {
	DefaultSchema      string   `toml:"default_schema"`      // shared schema holding the tenant catalog
	Mode               string   `toml:"mode"`                // header, subdomain, or domain
	TenantHeader       string   `toml:"tenant_header"`       // header carrying the tenant name in header mode
	BaseDomain         string   `toml:"base_domain"`         // apex domain for subdomain/custom-domain matching
	ExcludedSubdomains []string `toml:"excluded_subdomains"` // leading labels that never name a tenant
	TenantURLPrefix    string   `toml:"tenant_url_prefix"`   // reserved path space for tenant-scoped routes
}

// ConfigParam holds all configuration parameters for the tenantd service.
type ConfigParam struct {
	FormatVersion string `toml:"format_version"` // version of this configuration file format

	ServerHostName     string `toml:"server_hostname"`       // hostname for the server
	ServerPort         string `toml:"server_port"`           // port for the HTTP server
	HandleCORS         bool   `toml:"handle_cors"`           // whether to handle CORS
	MaxRequestBodySize int64  `toml:"max_request_body_size"` // maximum request body size in bytes

	Tenancy TenancyConfig `toml:"tenancy"`

	DB struct {
		Host     string `toml:"host"`     // database host
		Port     int    `toml:"port"`     // database port
		DBName   string `toml:"dbname"`   // database name
		User     string `toml:"user"`     // database user
		Password string `toml:"password"` // database password; TENANTD_DB_PASSWORD overrides
		SSLMode  string `toml:"sslmode"`  // SSL mode for database connection
	} `toml:"db"`
}

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

// CatalogDSN returns the DSN for the tenant catalog database.
func CatalogDSN() string {
	return cfg.DSN()
}

// ValidateConfig checks that all required configuration values are present
// and consistent with the selected resolution mode.
func ValidateConfig(cfg *ConfigParam) error {
	if cfg.FormatVersion != Version {
		return fmt.Errorf("unsupported config file format version: %s", cfg.FormatVersion)
	}
	if err := validateServerConfig(cfg); err != nil {
		return err
	}
	if err := validateTenancyConfig(cfg); err != nil {
		return err
	}
	return validateDBConfig(cfg)
}

func validateServerConfig(cfg *ConfigParam) error {
	if cfg.ServerPort == "" {
		return fmt.Errorf("server_port is required")
	}
	return nil
}

func validateTenancyConfig(cfg *ConfigParam) error {
	t := &cfg.Tenancy
	if t.DefaultSchema == "" {
		t.DefaultSchema = "public"
	}
	if t.TenantURLPrefix == "" {
		t.TenantURLPrefix = DefaultTenantURLPrefix
	}
	if !strings.HasPrefix(t.TenantURLPrefix, "/") {
		return fmt.Errorf("tenancy.tenant_url_prefix must start with /")
	}
	switch t.Mode {
	case ModeHeader:
		if t.TenantHeader == "" {
			t.TenantHeader = "X-Tenant"
		}
	case ModeSubdomain:
		if len(t.ExcludedSubdomains) == 0 {
			t.ExcludedSubdomains = []string{"www", "localhost", "local"}
		}
	case ModeDomain:
		if t.BaseDomain == "" {
			return fmt.Errorf("tenancy.base_domain is required in domain mode")
		}
	case "":
		return fmt.Errorf("tenancy.mode is required")
	default:
		return fmt.Errorf("unknown tenancy.mode: %s", t.Mode)
	}
	return nil
}

func validateDBConfig(cfg *ConfigParam) error {
	if pw := os.Getenv("TENANTD_DB_PASSWORD"); pw != "" {
		cfg.DB.Password = pw
	}
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

// LoadConfig loads configuration from a file. A .env file alongside the
// process, when present, is loaded first so env overrides apply.
func LoadConfig(filename string) error {
	if filename == "" {
		return fmt.Errorf("config filename is required")
	}

	// Missing .env is fine; it only exists in dev setups.
	_ = godotenv.Load()

	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	cfg = &ConfigParam{}
	if _, err := toml.Decode(string(content), cfg); err != nil {
		return fmt.Errorf("error parsing config file: %v", err)
	}

	if err := ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}

	return nil
}

var isTest = false

// IsTest reports whether the process is running under test configuration.
func IsTest() bool {
	return isTest
}

// TestInit loads the repository's test configuration. It walks up from the
// working directory to the module root so tests can run from any package.
func TestInit() {
	isTest = true
	wd, err := os.Getwd()
	if err != nil {
		panic(err)
	}

	projectRoot := wd
	for {
		if _, err := os.Stat(filepath.Join(projectRoot, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(projectRoot)
		if parent == projectRoot {
			panic("could not find project root (go.mod)")
		}
		projectRoot = parent
	}
	if err := LoadConfig(filepath.Join(projectRoot, "tenantdsrv.conf")); err != nil {
		panic(fmt.Errorf("error loading config: %v", err))
	}
}
