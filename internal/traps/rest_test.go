package traps

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sundew-sh/sundew/internal/models"
)

func restRouter(t *testing.T, p *models.Persona) *chi.Mux {
	t.Helper()
	r := chi.NewRouter()
	NewREST(p, zap.NewNop().Sugar()).Routes(r)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())
	return rec, body
}

func TestRESTList(t *testing.T) {
	r := restRouter(t, testPersona())
	rec, body := doJSON(t, r, http.MethodGet, "/api/v2/users")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "1000", rec.Header().Get("X-RateLimit-Limit"))

	meta, ok := body["meta"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), meta["page"])
	assert.Equal(t, float64(25), meta["per_page"])

	assert.NotContains(t, rec.Body.String(), "{{")
}

func TestRESTListPagination(t *testing.T) {
	r := restRouter(t, testPersona())

	t.Run("explicit values echoed", func(t *testing.T) {
		_, body := doJSON(t, r, http.MethodGet, "/api/v2/users?page=3&per_page=50")
		meta := body["meta"].(map[string]any)
		assert.Equal(t, float64(3), meta["page"])
		assert.Equal(t, float64(50), meta["per_page"])
	})

	t.Run("bad page is a styled client error", func(t *testing.T) {
		rec, body := doJSON(t, r, http.MethodGet, "/api/v2/users?page=zero")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid query parameter", body["message"])
	})

	t.Run("per_page out of range", func(t *testing.T) {
		rec, _ := doJSON(t, r, http.MethodGet, "/api/v2/users?per_page=1000")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("negative page", func(t *testing.T) {
		rec, _ := doJSON(t, r, http.MethodGet, "/api/v2/users?page=-1")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRESTDetailAndSubResource(t *testing.T) {
	r := restRouter(t, testPersona())

	rec, body := doJSON(t, r, http.MethodGet, "/api/v2/users/usr_12345")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body)
	assert.NotContains(t, rec.Body.String(), "{{")

	rec, _ = doJSON(t, r, http.MethodGet, "/api/v2/users/usr_12345/permissions")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "{{")
}

func TestRESTCreate(t *testing.T) {
	r := restRouter(t, testPersona())
	rec, body := doJSON(t, r, http.MethodPost, "/api/v2/workspaces")

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "created", body["status"])
	assert.NotEmpty(t, body["created_at"])

	id, ok := body["id"].(string)
	require.True(t, ok)
	// ID carries the truncated resource name and a canary.
	assert.Regexp(t, `^wor_[0-9a-f]{16}$`, id)
}

func TestRESTAuthToken(t *testing.T) {
	t.Run("bearer", func(t *testing.T) {
		r := restRouter(t, testPersona())
		rec, body := doJSON(t, r, http.MethodPost, "/api/v2/auth/token")

		assert.Equal(t, http.StatusOK, rec.Code)
		token, ok := body["token"].(string)
		require.True(t, ok)
		assert.True(t, strings.HasPrefix(token, "sk-sundew-FAKE-"))
		assert.Equal(t, "bearer", body["type"])
	})

	t.Run("oauth2", func(t *testing.T) {
		p := testPersona()
		p.AuthScheme = models.AuthOAuth2
		r := restRouter(t, p)
		_, body := doJSON(t, r, http.MethodPost, "/api/v2/auth/token")

		access, ok := body["access_token"].(string)
		require.True(t, ok)
		assert.True(t, strings.HasPrefix(access, "eyJhbGciOiJSUzI1NiIsInR5cCI6IkpXVCJ9."))
		assert.Equal(t, "Bearer", body["token_type"])
		assert.Equal(t, float64(3600), body["expires_in"])

		refresh, ok := body["refresh_token"].(string)
		require.True(t, ok)
		assert.True(t, strings.HasPrefix(refresh, "rt_"))

		// The id_token is a structurally valid JWT an attacker can decode,
		// but it never verifies against a real issuer.
		idToken, ok := body["id_token"].(string)
		require.True(t, ok)
		parser := jwt.NewParser()
		claims := jwt.MapClaims{}
		_, _, err := parser.ParseUnverified(idToken, claims)
		require.NoError(t, err)
		assert.Equal(t, "https://api.novalabs.example.com", claims["iss"])
	})

	t.Run("api key", func(t *testing.T) {
		p := testPersona()
		p.AuthScheme = models.AuthAPIKeyHdr
		r := restRouter(t, p)
		_, body := doJSON(t, r, http.MethodPost, "/api/v2/auth/token")

		key, ok := body["api_key"].(string)
		require.True(t, ok)
		assert.True(t, strings.HasPrefix(key, "ak_"))
	})

	t.Run("basic", func(t *testing.T) {
		p := testPersona()
		p.AuthScheme = models.AuthBasic
		r := restRouter(t, p)
		_, body := doJSON(t, r, http.MethodPost, "/api/v2/auth/token")

		sess, ok := body["session_id"].(string)
		require.True(t, ok)
		assert.True(t, strings.HasPrefix(sess, "sess_"))
		assert.Equal(t, true, body["authenticated"])
	})
}

func TestRESTDocs(t *testing.T) {
	r := restRouter(t, testPersona())
	rec, body := doJSON(t, r, http.MethodGet, "/api-docs")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3.0.3", body["openapi"])
}

func TestRESTErrorStyleFollowsPersona(t *testing.T) {
	p := testPersona()
	p.ErrorStyle = models.ErrorRFC7807
	r := restRouter(t, p)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v2/users?page=bogus", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}
