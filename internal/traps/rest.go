package traps

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sundew-sh/sundew/internal/models"
	"github.com/sundew-sh/sundew/internal/persona"
)

// REST serves the persona-prefixed resource endpoints. Any credentials are
// accepted, every response is fabricated, and every identifier carries a
// canary.
type REST struct {
	persona *models.Persona
	logger  *zap.SugaredLogger
}

// NewREST creates the REST trap for a persona.
func NewREST(p *models.Persona, logger *zap.SugaredLogger) *REST {
	return &REST{persona: p, logger: logger}
}

// Routes mounts the REST trap endpoints on the router. The docs path lives
// at the root, everything else under the persona's endpoint prefix.
func (t *REST) Routes(r chi.Router) {
	prefix := strings.TrimSuffix(t.persona.EndpointPrefix, "/")

	r.Post(prefix+"/auth/token", t.handleAuthToken)
	r.Get(prefix+"/{resource}", t.handleList)
	r.Post(prefix+"/{resource}", t.handleCreate)
	r.Get(prefix+"/{resource}/{id}", t.handleDetail)
	r.Get(prefix+"/{resource}/{id}/{sub}", t.handleSubResource)
	r.Get(DocsPath(t.persona), t.handleDocs)
}

// sleepLatency blocks for the persona's configured latency or until the
// client goes away.
func sleepLatency(ctx context.Context, p *models.Persona) error {
	timer := time.NewTimer(time.Duration(p.ResponseLatencyMS) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *REST) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if err := sleepLatency(r.Context(), t.persona); err != nil {
		return
	}
	rateLimitHeaders(w.Header())
	writeJSON(w, http.StatusOK, buildAuthToken(t.persona))
}

// buildAuthToken fabricates a credential response shaped by the persona's
// auth scheme. Every token embeds a canary; bearer and API keys carry the
// FAKE marker so exfiltrated credentials are unambiguous.
func buildAuthToken(p *models.Persona) map[string]any {
	tokenID := strings.ReplaceAll(uuid.NewString(), "-", "")
	canary := persona.Canary(p, "auth:"+tokenID)
	now := time.Now().UTC()

	switch p.AuthScheme {
	case models.AuthOAuth2:
		return map[string]any{
			"access_token":  "eyJhbGciOiJSUzI1NiIsInR5cCI6IkpXVCJ9." + canary,
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "rt_" + canary,
			"scope":         "read write",
			"id_token":      decoyIDToken(p, canary, now),
		}
	case models.AuthBearer:
		return map[string]any{
			"token":      "sk-sundew-FAKE-" + canary,
			"type":       "bearer",
			"expires_at": now.Add(time.Hour).Format("2006-01-02T15:04:05Z"),
		}
	case models.AuthAPIKeyHdr, models.AuthAPIKeyQuery:
		return map[string]any{
			"api_key":    "ak_" + canary,
			"created_at": now.Format("2006-01-02T15:04:05Z"),
			"name":       "generated-key",
		}
	default: // basic
		return map[string]any{
			"session_id":    "sess_" + canary,
			"authenticated": true,
			"expires_at":    now.Add(time.Hour).Format("2006-01-02T15:04:05Z"),
		}
	}
}

// decoyIDToken signs a structurally valid HS256 JWT whose secret is itself
// canary-derived, so a verifier can never validate it against anything real
// but an attacker sees a believable OIDC id_token.
func decoyIDToken(p *models.Persona, canary string, now time.Time) string {
	domain := CompanyDomain(p)
	claims := jwt.MapClaims{
		"iss": "https://api." + domain,
		"sub": "usr_" + canary,
		"aud": "api",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(persona.Canary(p, "jwt:"+canary)))
	if err != nil {
		return "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9." + canary
	}
	return signed
}

// pagination echoes page and per_page from the query, defaulting to 1/25.
// Out-of-range values are a client error in the persona's own style.
func pagination(r *http.Request) (page, perPage int, err error) {
	page, perPage = 1, 25
	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, fmt.Errorf("page must be an integer >= 1")
		}
	}
	if raw := r.URL.Query().Get("per_page"); raw != "" {
		perPage, err = strconv.Atoi(raw)
		if err != nil || perPage < 1 || perPage > 100 {
			return 0, 0, fmt.Errorf("per_page must be an integer in [1,100]")
		}
	}
	return page, perPage, nil
}

func (t *REST) handleList(w http.ResponseWriter, r *http.Request) {
	page, perPage, err := pagination(r)
	if err != nil {
		WriteError(w, t.persona, http.StatusBadRequest, "Invalid query parameter", err.Error())
		return
	}
	if err := sleepLatency(r.Context(), t.persona); err != nil {
		return
	}

	resource := chi.URLParam(r, "resource")
	body := t.renderListBody("list:" + resource)
	body["meta"] = map[string]any{
		"page":        page,
		"per_page":    perPage,
		"total":       47,
		"total_pages": 2,
	}
	rateLimitHeaders(w.Header())
	writeJSON(w, http.StatusOK, body)
}

func (t *REST) handleDetail(w http.ResponseWriter, r *http.Request) {
	if err := sleepLatency(r.Context(), t.persona); err != nil {
		return
	}

	resource := chi.URLParam(r, "resource")
	id := chi.URLParam(r, "id")
	template, ok := detailTemplates[t.persona.Industry]
	if !ok {
		template = detailTemplates[models.IndustrySaaS]
	}
	vars := templateVars(t.persona, fmt.Sprintf("detail:%s:%s", resource, id))
	rateLimitHeaders(w.Header())
	writeJSON(w, http.StatusOK, renderValue(template, vars))
}

func (t *REST) handleSubResource(w http.ResponseWriter, r *http.Request) {
	if err := sleepLatency(r.Context(), t.persona); err != nil {
		return
	}

	resource := chi.URLParam(r, "resource")
	id := chi.URLParam(r, "id")
	sub := chi.URLParam(r, "sub")
	body := t.renderListBody(fmt.Sprintf("sub:%s:%s:%s", resource, id, sub))
	rateLimitHeaders(w.Header())
	writeJSON(w, http.StatusOK, body)
}

func (t *REST) handleCreate(w http.ResponseWriter, r *http.Request) {
	if err := sleepLatency(r.Context(), t.persona); err != nil {
		return
	}

	resource := chi.URLParam(r, "resource")
	canary := persona.Canary(t.persona, fmt.Sprintf("create:%s:%s", resource, uuid.NewString()[:8]))
	idPrefix := resource
	if len(idPrefix) > 3 {
		idPrefix = idPrefix[:3]
	}
	body := map[string]any{
		"id":         fmt.Sprintf("%s_%s", idPrefix, canary),
		"status":     "created",
		"created_at": time.Now().UTC().Format("2006-01-02T15:04:05Z"),
	}
	rateLimitHeaders(w.Header())
	writeJSON(w, http.StatusCreated, body)
}

func (t *REST) handleDocs(w http.ResponseWriter, r *http.Request) {
	rateLimitHeaders(w.Header())
	writeJSON(w, http.StatusOK, BuildOpenAPISpec(t.persona))
}

// renderListBody interpolates the industry list template. The render is a
// deep copy so adding meta never mutates the shared table.
func (t *REST) renderListBody(endpoint string) map[string]any {
	template, ok := listTemplates[t.persona.Industry]
	if !ok {
		template = listTemplates[models.IndustrySaaS]
	}
	return renderValue(template, templateVars(t.persona, endpoint))
}
