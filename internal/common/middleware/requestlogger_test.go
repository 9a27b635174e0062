package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tenantd/tenantd/internal/common/logtrace"
)

func TestRequestLoggerRequestId(t *testing.T) {
	var seen string
	h := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logtrace.RequestIdFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/widgets", nil))

	// The id the handler can read is the one the response header carries.
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
}

func TestRequestIdFromContextMissing(t *testing.T) {
	assert.Empty(t, logtrace.RequestIdFromContext(nil))
	assert.Empty(t, logtrace.RequestIdFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}
