package tencommon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidSchemaName(t *testing.T) {
	valid := []string{"acme", "acme-corp", "acme_corp", "Tenant9", "_internal", "a"}
	for _, name := range valid {
		assert.True(t, ValidSchemaName(name), "expected %q to be valid", name)
	}

	invalid := []string{
		"",
		"9acme",            // leading digit
		"-acme",            // leading hyphen
		"acme corp",        // whitespace
		"acme;drop",        // statement separator
		`acme"corp`,        // quote
		"acme.corp",        // qualified name
		"pg_catalog",       // reserved
		"information_schema",
		string(make([]byte, 64)), // too long and not an identifier
	}
	for _, name := range invalid {
		assert.False(t, ValidSchemaName(name), "expected %q to be invalid", name)
	}
}

func TestTenantContextRoundTrip(t *testing.T) {
	ctx := context.Background()

	assert.Nil(t, GetTenantContext(ctx))
	assert.False(t, IsTenantScoped(ctx))
	assert.Equal(t, "", GetTenantName(ctx))

	tc := &TenantContext{TenantName: "acme", SchemaName: "acme", Scoped: true}
	ctx = WithTenantContext(ctx, tc)

	assert.Equal(t, tc, GetTenantContext(ctx))
	assert.True(t, IsTenantScoped(ctx))
	assert.Equal(t, "acme", GetTenantName(ctx))
}

func TestTenantContextUnscoped(t *testing.T) {
	ctx := WithTenantContext(context.Background(), &TenantContext{
		TenantName: "public",
		SchemaName: "public",
		Scoped:     false,
	})

	assert.False(t, IsTenantScoped(ctx))
	// GetTenantName only reports tenants, never the default schema.
	assert.Equal(t, "", GetTenantName(ctx))
}
