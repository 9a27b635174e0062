package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteTenantPath(t *testing.T) {
	assert.Equal(t, "/__tenant__/widgets", rewriteTenantPath("/__tenant__", "/widgets"))
	assert.Equal(t, "/__tenant__/", rewriteTenantPath("/__tenant__", "/"))
	assert.Equal(t, "/__tenant__/a/b", rewriteTenantPath("/__tenant__", "a/b"))
}

func TestGetVersion(t *testing.T) {
	s := &TenantServer{}
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/version", nil)

	s.getVersion(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), serverVersion)
	assert.Contains(t, w.Body.String(), apiVersion)
}
