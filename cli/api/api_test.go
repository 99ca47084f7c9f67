package api

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oaiiae/contactbook/datastores"
)

const secret = "test-secret"

func token(t *testing.T, key, subject string, roles ...string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(key))
	require.NoError(t, err)
	return signed
}

type routerTest struct {
	t       *testing.T
	handler http.Handler
	logs    *bytes.Buffer
}

func newRouterTest(t *testing.T, options *RouterOptions, store datastores.ContactsStore) *routerTest {
	t.Helper()
	logs := new(bytes.Buffer)
	logger := slog.New(slog.NewTextHandler(logs, nil))
	if store == nil {
		store = datastores.NewContactsInmem(&datastores.Contact{
			Name: "john", Lastname: "smith", Email: "john@example.com", Phone: "1", Address: "1 Main St",
		})
	}
	handler, err := NewRouter(options, "contactbook", "test", "rev", "now", store, logger)
	require.NoError(t, err)
	return &routerTest{t: t, handler: handler, logs: logs}
}

func (r *routerTest) do(method, target, bearer, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.handler.ServeHTTP(rec, req)
	return rec
}

func defaultOptions() *RouterOptions {
	return &RouterOptions{
		EndpointsPrefix: "/api",
		SearchCache:     "session",
		SearchCacheTTL:  time.Minute,
		CSVEscaping:     "none",
		AuthSecret:      secret,
	}
}

const newContact = `{"name":"Ann","lastname":"Lee","email":"ann@example.com","phone":"555","address":"1 Main St"}`

func TestRouterAuthorization(t *testing.T) {
	r := newRouterTest(t, defaultOptions(), nil)
	admin := token(t, secret, "alice", "Admin")
	user := token(t, secret, "bob", "User")

	t.Run("missing token", func(t *testing.T) {
		rec := r.do(http.MethodGet, "/api/contacts/", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	})

	t.Run("token signed with another key", func(t *testing.T) {
		rec := r.do(http.MethodGet, "/api/contacts/", token(t, "other", "eve", "Admin"), "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token without known role", func(t *testing.T) {
		rec := r.do(http.MethodGet, "/api/contacts/", token(t, secret, "eve", "Guest"), "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("user reads", func(t *testing.T) {
		for _, path := range []string{"/api/contacts/", "/api/contacts/1", "/api/contacts/search?query=john", "/api/contacts/export.csv", "/api/contacts/export.xlsx"} {
			assert.Equal(t, http.StatusOK, r.do(http.MethodGet, path, user, "").Code, path)
		}
	})

	t.Run("user cannot write", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, r.do(http.MethodGet, "/api/contacts/new", user, "").Code)
		assert.Equal(t, http.StatusForbidden, r.do(http.MethodPost, "/api/contacts/new", user, newContact).Code)
		assert.Equal(t, http.StatusForbidden, r.do(http.MethodGet, "/api/contacts/1/edit", user, "").Code)
		assert.Equal(t, http.StatusForbidden, r.do(http.MethodPost, "/api/contacts/1/delete", user, "").Code)
		assert.Equal(t, http.StatusOK, r.do(http.MethodGet, "/api/contacts/1", user, "").Code, "still there")
	})

	t.Run("admin writes", func(t *testing.T) {
		assert.Equal(t, http.StatusCreated, r.do(http.MethodPost, "/api/contacts/new", admin, newContact).Code)
		assert.Equal(t, http.StatusNoContent, r.do(http.MethodPost, "/api/contacts/1/delete", admin, "").Code)
		assert.Equal(t, http.StatusNotFound, r.do(http.MethodGet, "/api/contacts/1", admin, "").Code)
	})

	t.Run("probes are public", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, r.do(http.MethodGet, "/liveness", "", "").Code)
		assert.Equal(t, http.StatusOK, r.do(http.MethodGet, "/readiness", "", "").Code)
		assert.Equal(t, http.StatusOK, r.do(http.MethodGet, "/openapi.json", "", "").Code)
	})
}

func TestRouterSearchScopedBySubject(t *testing.T) {
	r := newRouterTest(t, defaultOptions(), nil)
	alice := token(t, secret, "alice", "User")
	bob := token(t, secret, "bob", "User")

	require.Equal(t, http.StatusOK, r.do(http.MethodGet, "/api/contacts/?query=john", alice, "").Code)

	rec := r.do(http.MethodGet, "/api/contacts/export.csv", alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "1,john,smith")

	rec = r.do(http.MethodGet, "/api/contacts/export.csv", bob, "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestRouterGlobalSearchCache(t *testing.T) {
	options := defaultOptions()
	options.SearchCache = "global"
	r := newRouterTest(t, options, nil)
	alice := token(t, secret, "alice", "User")
	bob := token(t, secret, "bob", "User")

	require.Equal(t, http.StatusOK, r.do(http.MethodGet, "/api/contacts/?query=john", alice, "").Code)

	rec := r.do(http.MethodGet, "/api/contacts/export.csv", bob, "")
	require.Equal(t, http.StatusOK, rec.Code, "results leak across users in global mode")
	assert.Contains(t, rec.Body.String(), "1,john,smith")
}

func TestRouterWithoutAuthentication(t *testing.T) {
	options := defaultOptions()
	options.AuthSecret = ""
	r := newRouterTest(t, options, nil)

	assert.Contains(t, r.logs.String(), "authentication disabled")
	assert.Equal(t, http.StatusCreated, r.do(http.MethodPost, "/api/contacts/new", "", newContact).Code)
}

func TestRouterUnknownContactRoute(t *testing.T) {
	r := newRouterTest(t, defaultOptions(), nil)
	user := token(t, secret, "bob", "User")

	assert.Equal(t, http.StatusNotFound, r.do(http.MethodGet, "/api/contacts/1/x", user, "").Code)
	assert.Equal(t, http.StatusOK, r.do(http.MethodGet, "/api/contacts/", user, "").Code)
}

func TestRouterMetrics(t *testing.T) {
	r := newRouterTest(t, defaultOptions(), nil)
	user := token(t, secret, "bob", "User")
	r.do(http.MethodGet, "/api/contacts/search?query=", user, "")
	r.do(http.MethodGet, "/api/contacts/export.xlsx", user, "")

	body := r.do(http.MethodGet, "/metrics", "", "").Body.String()
	assert.Contains(t, body, `build_info{goversion=`)
	assert.Contains(t, body, `http_requests_total{method="GET",path="/api/contacts/search",status="200"} 1`)
	assert.Contains(t, body, `contacts_exports_total{format="xlsx"} 1`)
	assert.Contains(t, body, `contacts_search_cache_entries 1`)
}

func TestRouterRequestLogs(t *testing.T) {
	r := newRouterTest(t, defaultOptions(), nil)
	req := httptest.NewRequest(http.MethodGet, "/api/contacts/9999", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, secret, "bob", "User"))
	req.Header.Set("X-Request-Id", "req-1")
	r.handler.ServeHTTP(httptest.NewRecorder(), req)

	logs := r.logs.String()
	assert.Contains(t, logs, "x-request-id=req-1")
	assert.Contains(t, logs, `msg="error occurred"`)
	assert.Contains(t, logs, "level=WARN")
	assert.Contains(t, logs, "status=404")
}

type unreachableStore struct{ datastores.ContactsStore }

func (unreachableStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestRouterReadiness(t *testing.T) {
	r := newRouterTest(t, defaultOptions(), unreachableStore{datastores.NewContactsInmem()})
	assert.Equal(t, http.StatusServiceUnavailable, r.do(http.MethodGet, "/readiness", "", "").Code)
	assert.Contains(t, r.logs.String(), "store not ready")
}

func TestNewRouterInvalidOptions(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	store := datastores.NewContactsInmem()

	options := defaultOptions()
	options.SearchCache = "redis"
	_, err := NewRouter(options, "t", "v", "r", "c", store, logger)
	assert.Error(t, err)

	options = defaultOptions()
	options.CSVEscaping = "backslash"
	_, err = NewRouter(options, "t", "v", "r", "c", store, logger)
	assert.Error(t, err)
}
