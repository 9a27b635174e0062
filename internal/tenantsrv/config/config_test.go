package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tenantdsrv.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

const validConfig = `
format_version = "0.1.0"
server_port = "8678"

[tenancy]
mode = "domain"
base_domain = "example.com"

[db]
host = "localhost"
port = 5432
dbname = "tenantd"
user = "tenantd"
password = "secret"
sslmode = "disable"
`

func TestLoadConfig(t *testing.T) {
	err := LoadConfig(writeConfig(t, validConfig))
	require.NoError(t, err)

	c := Config()
	assert.Equal(t, "8678", c.ServerPort)
	assert.Equal(t, ModeDomain, c.Tenancy.Mode)
	assert.Equal(t, "example.com", c.Tenancy.BaseDomain)

	// Defaults fill in for omitted tenancy options.
	assert.Equal(t, "public", c.Tenancy.DefaultSchema)
	assert.Equal(t, DefaultTenantURLPrefix, c.Tenancy.TenantURLPrefix)

	assert.Contains(t, c.DSN(), "dbname=tenantd")
	assert.Contains(t, c.DSN(), "host=localhost")
}

func TestLoadConfigHeaderModeDefaults(t *testing.T) {
	body := `
format_version = "0.1.0"
server_port = "8678"

[tenancy]
mode = "header"

[db]
host = "localhost"
port = 5432
dbname = "tenantd"
user = "tenantd"
password = "secret"
sslmode = "disable"
`
	require.NoError(t, LoadConfig(writeConfig(t, body)))
	assert.Equal(t, "X-Tenant", Config().Tenancy.TenantHeader)
}

func TestLoadConfigRejectsUnknownMode(t *testing.T) {
	body := `
format_version = "0.1.0"
server_port = "8678"

[tenancy]
mode = "cookie"

[db]
host = "localhost"
port = 5432
dbname = "tenantd"
user = "tenantd"
password = "secret"
sslmode = "disable"
`
	err := LoadConfig(writeConfig(t, body))
	assert.ErrorContains(t, err, "unknown tenancy.mode")
}

func TestLoadConfigRequiresBaseDomainInDomainMode(t *testing.T) {
	body := `
format_version = "0.1.0"
server_port = "8678"

[tenancy]
mode = "domain"

[db]
host = "localhost"
port = 5432
dbname = "tenantd"
user = "tenantd"
password = "secret"
sslmode = "disable"
`
	err := LoadConfig(writeConfig(t, body))
	assert.ErrorContains(t, err, "base_domain is required")
}

func TestDBPasswordEnvOverride(t *testing.T) {
	t.Setenv("TENANTD_DB_PASSWORD", "from-env")
	require.NoError(t, LoadConfig(writeConfig(t, validConfig)))
	assert.Equal(t, "from-env", Config().DB.Password)
}

func TestLoadConfigRejectsWrongFormatVersion(t *testing.T) {
	body := `
format_version = "9.9.9"
server_port = "8678"
`
	err := LoadConfig(writeConfig(t, body))
	assert.ErrorContains(t, err, "unsupported config file format version")
}
