package security

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationID(t *testing.T) {
	var seen string
	h := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationIDFromContext(r.Context())
	}))

	t.Run("generates when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(CorrelationIDHeader))
	})

	t.Run("propagates when present", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(CorrelationIDHeader, "cid-42")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "cid-42", seen)
	})

	t.Run("falls back to the proxy request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "proxy-77")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "proxy-77", seen)
	})

	t.Run("replaces oversized or unprintable ids", func(t *testing.T) {
		for _, bad := range []string{strings.Repeat("a", 65), "has space", "tab\there"} {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(CorrelationIDHeader, bad)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.NotEqual(t, bad, seen)
			assert.NotEmpty(t, seen)
		}
	})
}

func TestIPAllowlist(t *testing.T) {
	allow, err := ParseCIDRAllowlist([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := IPAllowlist(allow, nil)(ok)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:5000"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Empty allowlist admits everyone.
	open := IPAllowlist(nil, nil)(ok)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:5000"
	rec = httptest.NewRecorder()
	open.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestParseCIDRAllowlist(t *testing.T) {
	out, err := ParseCIDRAllowlist([]string{" 10.0.0.0/8 ", "", "192.168.0.0/16"})
	require.NoError(t, err)
	assert.Len(t, out, 2)

	t.Run("bare addresses become host routes", func(t *testing.T) {
		out, err := ParseCIDRAllowlist([]string{"10.1.2.3", "2001:db8::1"})
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.True(t, out[0].Contains(net.ParseIP("10.1.2.3")))
		assert.False(t, out[0].Contains(net.ParseIP("10.1.2.4")))
		assert.True(t, out[1].Contains(net.ParseIP("2001:db8::1")))
	})

	_, err = ParseCIDRAllowlist([]string{"not-a-cidr"})
	assert.Error(t, err)
}

func TestBodySizeLimit(t *testing.T) {
	h := BodySizeLimit(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		_, err := r.Body.Read(buf)
		if err != nil {
			var mbe *http.MaxBytesError
			if assert.ErrorAs(t, err, &mbe) {
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestJSONSchemaValidator(t *testing.T) {
	v, err := NewJSONSchemaValidator(`{
		"type": "object",
		"required": ["name"],
		"properties": {"name": {"type": "string", "minLength": 1}}
	}`)
	require.NoError(t, err)

	var handlerBody string
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := make([]byte, 128)
		n, _ := r.Body.Read(b)
		handlerBody = string(b[:n])
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid body reaches the handler intact", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok"}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, `{"name":"ok"}`, handlerBody)
	})

	t.Run("schema violation", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "validation_error")
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid_json")
	})
}
