package traps

import (
	"fmt"
	"strings"

	"github.com/sundew-sh/sundew/internal/models"
)

// DocsPath returns the documentation path matching the persona's framework
// fingerprint, so a Django persona documents itself like Django would.
func DocsPath(p *models.Persona) string {
	fw := strings.ToLower(p.FrameworkFingerprint)
	switch {
	case strings.Contains(fw, "express"), strings.Contains(fw, "nestjs"):
		return "/api-docs"
	case strings.Contains(fw, "django"), strings.Contains(fw, "flask"), strings.Contains(fw, "fastapi"):
		return "/docs"
	case strings.Contains(fw, "rails"):
		return "/api/docs"
	case strings.Contains(fw, "spring"):
		return "/swagger-ui.html"
	case strings.Contains(fw, "laravel"):
		return "/api/documentation"
	}
	return "/docs"
}

// BuildOpenAPISpec assembles a complete OpenAPI 3.0.3 document for the
// persona's advertised endpoints, including the auth-token operation and a
// security scheme derived from the persona's auth scheme.
func BuildOpenAPISpec(p *models.Persona) map[string]any {
	endpoints, ok := restEndpoints[p.Industry]
	if !ok {
		endpoints = restEndpoints[models.IndustrySaaS]
	}
	domain := CompanyDomain(p)
	prefix := strings.TrimSuffix(p.EndpointPrefix, "/")

	paths := map[string]any{}
	for _, ep := range endpoints {
		fullPath := prefix + ep.Path
		ops, ok := paths[fullPath].(map[string]any)
		if !ok {
			ops = map[string]any{}
			paths[fullPath] = ops
		}
		ops[strings.ToLower(ep.Method)] = map[string]any{
			"summary":     ep.Summary,
			"operationId": operationID(ep.Path),
			"responses": map[string]any{
				"200": map[string]any{"description": "Successful response"},
				"401": map[string]any{"description": "Unauthorized"},
				"404": map[string]any{"description": "Not found"},
			},
		}
	}

	authPath := prefix + "/auth/token"
	paths[authPath] = map[string]any{
		"post": map[string]any{
			"summary":     "Authenticate and obtain access token",
			"operationId": "auth_token",
			"responses": map[string]any{
				"200": map[string]any{"description": "Authentication successful"},
				"401": map[string]any{"description": "Invalid credentials"},
			},
		},
	}

	securitySchemes := map[string]any{}
	var security []any
	switch p.AuthScheme {
	case models.AuthBearer:
		securitySchemes["bearerAuth"] = map[string]any{"type": "http", "scheme": "bearer"}
		security = []any{map[string]any{"bearerAuth": []any{}}}
	case models.AuthAPIKeyHdr:
		securitySchemes["apiKeyAuth"] = map[string]any{
			"type": "apiKey",
			"in":   "header",
			"name": "X-API-Key",
		}
		security = []any{map[string]any{"apiKeyAuth": []any{}}}
	case models.AuthOAuth2:
		securitySchemes["oauth2"] = map[string]any{
			"type": "oauth2",
			"flows": map[string]any{
				"clientCredentials": map[string]any{
					"tokenUrl": authPath,
					"scopes":   map[string]any{"read": "Read access", "write": "Write access"},
				},
			},
		}
		security = []any{map[string]any{"oauth2": []any{"read", "write"}}}
	default:
		securitySchemes["basicAuth"] = map[string]any{"type": "http", "scheme": "basic"}
		security = []any{map[string]any{"basicAuth": []any{}}}
	}

	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":       fmt.Sprintf("%s API", p.CompanyName),
			"version":     "1.0.0",
			"description": fmt.Sprintf("Internal API for %s %s service.", p.CompanyName, p.DataTheme),
			"contact":     map[string]any{"email": "api-support@" + domain},
		},
		"servers":    []any{map[string]any{"url": "https://api." + domain}},
		"paths":      paths,
		"security":   security,
		"components": map[string]any{"securitySchemes": securitySchemes},
	}
}

// operationID turns "/accounts/{id}/balance" into "accounts_id_balance".
func operationID(path string) string {
	s := strings.Trim(path, "/")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "{", "")
	s = strings.ReplaceAll(s, "}", "")
	return s
}
