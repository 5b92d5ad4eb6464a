package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sundew-sh/sundew/internal/llm"
	"github.com/sundew-sh/sundew/internal/models"
)

const templateCacheFile = "template_cache.json"

const generationSystemPrompt = `You are a response template generator for a realistic API honeypot.
Given a company persona, generate realistic API response templates that look like
a real production API. Templates use {{variable}} placeholders for dynamic values.

Available placeholders:
- {{timestamp}} — current ISO 8601 timestamp
- {{request_id}} — unique request ID
- {{random_id}} — random UUID
- {{random_int}} — random integer
- {{source_ip}} — requester's IP

Respond with valid JSON only. No markdown, no explanation.`

// Engine owns the response template cache. Templates are generated once at
// startup (from the LLM provider or the built-in packs), persisted under the
// data directory, and served read-only afterwards.
type Engine struct {
	persona  *models.Persona
	provider llm.Provider
	dataDir  string
	logger   *zap.SugaredLogger

	mu        sync.RWMutex
	templates map[string]models.ResponseTemplate
}

// NewEngine creates an engine for the persona. The provider may be nil to
// force pack-only template loading.
func NewEngine(p *models.Persona, provider llm.Provider, dataDir string, logger *zap.SugaredLogger) (*Engine, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Engine{
		persona:   p,
		provider:  provider,
		dataDir:   dataDir,
		logger:    logger,
		templates: make(map[string]models.ResponseTemplate),
	}, nil
}

// Persona returns the engine's persona.
func (e *Engine) Persona() *models.Persona { return e.persona }

// Initialize populates the template cache. A persisted cache wins unless
// forceRegenerate is set; otherwise the provider generates templates, with
// packs (and finally minimal defaults) as the fallback chain. The populated
// cache is persisted before returning.
func (e *Engine) Initialize(ctx context.Context, forceRegenerate bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !forceRegenerate && e.loadFromCache() {
		e.logger.Infow("Loaded templates from cache",
			"count", len(e.templates), "persona", e.persona.CompanyName)
		return nil
	}

	e.generateTemplates(ctx)

	if err := e.saveToCache(); err != nil {
		return fmt.Errorf("failed to persist template cache: %w", err)
	}
	e.logger.Infow("Generated templates",
		"count", len(e.templates), "persona", e.persona.CompanyName)
	return nil
}

func (e *Engine) generateTemplates(ctx context.Context) {
	if e.provider == nil || e.provider.Name() == "none" {
		e.logger.Info("No LLM provider configured, using persona packs")
		e.loadFromPacks()
		return
	}

	prompt := buildGenerationPrompt(e.persona)
	text, err := e.provider.Generate(ctx, prompt, generationSystemPrompt)
	if err != nil {
		e.logger.Warnw("LLM generation failed, falling back to packs",
			"provider", e.provider.Name(), "error", err)
		e.loadFromPacks()
		return
	}

	if !e.parseLLMResponse(text) {
		e.loadFromPacks()
	}
}

// GetTemplate returns the template registered for the exact (method,
// endpoint) key.
func (e *Engine) GetTemplate(endpoint, method string) (models.ResponseTemplate, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.templates[templateKey(method, endpoint)]
	return t, ok
}

// Match resolves the template for a concrete request path. The exact key
// wins; otherwise patterns with {{var}} segments are matched, each wildcard
// covering one path component. Candidates are ranked by segment count, then
// by fewest wildcards.
func (e *Engine) Match(method, path string) (models.ResponseTemplate, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if t, ok := e.templates[templateKey(method, path)]; ok {
		return t, true
	}

	method = strings.ToUpper(method)
	pathSegs := splitPath(path)

	var best models.ResponseTemplate
	bestSegs, bestWildcards := -1, -1
	found := false

	for _, t := range e.templates {
		if strings.ToUpper(t.Method) != method {
			continue
		}
		segs := splitPath(t.Endpoint)
		if len(segs) != len(pathSegs) {
			continue
		}
		wildcards := 0
		matched := true
		for i, seg := range segs {
			if isWildcardSegment(seg) {
				wildcards++
				continue
			}
			if seg != pathSegs[i] {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		if len(segs) > bestSegs || (len(segs) == bestSegs && (bestWildcards < 0 || wildcards < bestWildcards)) {
			best = t
			bestSegs = len(segs)
			bestWildcards = wildcards
			found = true
		}
	}

	return best, found
}

// RegisterTemplate adds a template to the cache, replacing any template
// with the same method and endpoint.
func (e *Engine) RegisterTemplate(t models.ResponseTemplate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.register(t)
}

// AllTemplates returns a snapshot of every cached template.
func (e *Engine) AllTemplates() []models.ResponseTemplate {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.ResponseTemplate, 0, len(e.templates))
	for _, t := range e.templates {
		out = append(out, t)
	}
	return out
}

func (e *Engine) register(t models.ResponseTemplate) {
	e.templates[templateKey(t.Method, t.Endpoint)] = t
}

func templateKey(method, endpoint string) string {
	return strings.ToUpper(method) + ":" + endpoint
}

func splitPath(p string) []string {
	return strings.Split(strings.Trim(p, "/"), "/")
}

func isWildcardSegment(seg string) bool {
	return strings.HasPrefix(seg, "{{") && strings.HasSuffix(seg, "}}")
}

func (e *Engine) cachePath() string {
	return filepath.Join(e.dataDir, templateCacheFile)
}

func (e *Engine) loadFromCache() bool {
	data, err := os.ReadFile(e.cachePath())
	if err != nil {
		return false
	}

	var raw []models.ResponseTemplate
	if err := json.Unmarshal(data, &raw); err != nil {
		e.logger.Warnw("Failed to load template cache", "error", err)
		return false
	}

	for _, t := range raw {
		e.register(e.adjustTemplate(t))
	}
	return len(e.templates) > 0
}

func (e *Engine) saveToCache() error {
	e.logger.Debugw("Persisting template cache", "path", e.cachePath())

	out := make([]models.ResponseTemplate, 0, len(e.templates))
	for _, t := range e.templates {
		out = append(out, t)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal templates: %w", err)
	}
	if err := os.WriteFile(e.cachePath(), data, 0o644); err != nil {
		return fmt.Errorf("failed to write template cache: %w", err)
	}
	return nil
}

func (e *Engine) loadFromPacks() {
	pack := BuiltinPack(e.persona.Industry, e.persona.DataTheme)
	if pack == nil {
		e.logger.Warnw("No persona pack for industry, using saas pack",
			"industry", e.persona.Industry)
		pack = BuiltinPack(models.IndustrySaaS, e.persona.DataTheme)
	}
	if pack == nil {
		e.logger.Error("No persona packs available, generating minimal defaults")
		e.generateMinimalDefaults()
		return
	}

	for _, t := range pack.Templates {
		e.register(e.adjustTemplate(t))
	}
}

// generateMinimalDefaults registers the smallest template set that keeps
// the traps serving: list, detail, create, and health.
func (e *Engine) generateMinimalDefaults() {
	prefix := strings.TrimSuffix(e.persona.EndpointPrefix, "/")
	theme := e.persona.DataTheme

	defaults := []models.ResponseTemplate{
		{
			Endpoint:     prefix + "/" + theme,
			Method:       "GET",
			StatusCode:   200,
			ContentType:  "application/json",
			BodyTemplate: `{"data":[],"meta":{"total":0,"page":1,"per_page":20},"request_id":"{{request_id}}"}`,
			Description:  "List " + theme,
		},
		{
			Endpoint:     prefix + "/" + theme + "/{{random_id}}",
			Method:       "GET",
			StatusCode:   200,
			ContentType:  "application/json",
			BodyTemplate: `{"id":"{{random_id}}","created_at":"{{timestamp}}","updated_at":"{{timestamp}}"}`,
			Description:  "Get single " + theme + " item",
		},
		{
			Endpoint:     prefix + "/" + theme,
			Method:       "POST",
			StatusCode:   201,
			ContentType:  "application/json",
			BodyTemplate: `{"id":"{{random_id}}","created_at":"{{timestamp}}","status":"created"}`,
			Description:  "Create " + theme + " item",
		},
		{
			Endpoint:     prefix + "/health",
			Method:       "GET",
			StatusCode:   200,
			ContentType:  "application/json",
			BodyTemplate: `{"status":"healthy","timestamp":"{{timestamp}}","version":"1.0.0"}`,
			Description:  "Health check endpoint",
		},
	}

	for _, t := range defaults {
		e.register(t)
	}
}

// genericPrefixes are rewritten to the persona's own prefix when templates
// are loaded from packs, caches, or LLM output.
var genericPrefixes = []string{"/api/v1", "/api/v2", "/v1", "/api"}

func (e *Engine) adjustTemplate(t models.ResponseTemplate) models.ResponseTemplate {
	prefix := strings.TrimSuffix(e.persona.EndpointPrefix, "/")

	endpoint := t.Endpoint
	if !strings.HasPrefix(endpoint, prefix+"/") && endpoint != prefix {
		for _, generic := range genericPrefixes {
			if strings.HasPrefix(endpoint, generic) {
				endpoint = prefix + endpoint[len(generic):]
				break
			}
		}
	}

	body := strings.ReplaceAll(t.BodyTemplate, "{{company_name}}", e.persona.CompanyName)

	headers := make(map[string]string, len(t.Headers)+len(e.persona.ExtraHeaders))
	for k, v := range t.Headers {
		headers[k] = v
	}
	for k, v := range e.persona.ExtraHeaders {
		headers[k] = v
	}

	return models.ResponseTemplate{
		Endpoint:     endpoint,
		Method:       t.Method,
		StatusCode:   t.StatusCode,
		ContentType:  t.ContentType,
		Headers:      headers,
		BodyTemplate: body,
		Description:  t.Description,
	}
}

// parseLLMResponse validates LLM output as a JSON array of templates and
// registers the valid entries. Returns false when nothing usable came back.
func (e *Engine) parseLLMResponse(text string) bool {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		if len(lines) > 2 {
			text = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}

	var raw []models.ResponseTemplate
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		e.logger.Warnw("Failed to parse LLM response", "error", err)
		return false
	}

	registered := 0
	for _, t := range raw {
		if t.Endpoint == "" || t.Method == "" || t.StatusCode == 0 {
			e.logger.Debugw("Dropping invalid LLM template", "endpoint", t.Endpoint, "method", t.Method)
			continue
		}
		if t.ContentType == "" {
			t.ContentType = "application/json"
		}
		e.register(e.adjustTemplate(t))
		registered++
	}
	return registered > 0
}

func buildGenerationPrompt(p *models.Persona) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate realistic API response templates for this company:\n\n")
	fmt.Fprintf(&b, "Company: %s\n", p.CompanyName)
	fmt.Fprintf(&b, "Industry: %s\n", p.Industry)
	fmt.Fprintf(&b, "API Style: %s\n", p.APIStyle)
	fmt.Fprintf(&b, "Data Theme: %s\n", p.DataTheme)
	fmt.Fprintf(&b, "Endpoint Prefix: %s\n", p.EndpointPrefix)
	fmt.Fprintf(&b, "Error Style: %s\n", p.ErrorStyle)
	fmt.Fprintf(&b, "Auth Scheme: %s\n\n", p.AuthScheme)
	b.WriteString(`Generate a JSON array of response templates. Each template should have:
- endpoint: path with the given prefix
- method: HTTP method (GET, POST, PUT, DELETE)
- status_code: appropriate HTTP status
- content_type: "application/json"
- headers: dict of extra headers
- body_template: realistic JSON response body using {{timestamp}},
  {{request_id}}, {{random_id}}, {{random_int}} placeholders
- description: what this endpoint does

Generate at least 8 endpoints covering:
`)
	fmt.Fprintf(&b, "1. List collection (GET %s/%s)\n", p.EndpointPrefix, p.DataTheme)
	fmt.Fprintf(&b, "2. Get single item (GET %s/%s/{{random_id}})\n", p.EndpointPrefix, p.DataTheme)
	b.WriteString(`3. Create item (POST)
4. Update item (PUT)
5. Delete item (DELETE)
6. Health check
7. API documentation / OpenAPI spec endpoint
8. Auth token endpoint
9. Error responses (401, 403, 404, 429)
`)
	return b.String()
}
