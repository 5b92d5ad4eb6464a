package traps

import (
	"encoding/json"
	"encoding/xml"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sundew-sh/sundew/internal/models"
)

func testPersona() *models.Persona {
	return &models.Persona{
		Seed:                 1,
		CompanyName:          "NovaLabs",
		Industry:             models.IndustrySaaS,
		APIStyle:             "rest",
		FrameworkFingerprint: "express/4.18.2",
		ErrorStyle:           models.ErrorSimpleJSON,
		AuthScheme:           models.AuthBearer,
		DataTheme:            "users",
		ResponseLatencyMS:    10,
		ServerHeader:         "nginx/1.24.0",
		EndpointPrefix:       "/api/v2",
		MCPServerName:        "data-api",
		MCPToolPrefix:        "user_",
	}
}

func TestCompanyDomain(t *testing.T) {
	p := testPersona()
	assert.Equal(t, "novalabs.example.com", CompanyDomain(p))

	p.CompanyName = "Apex Data Systems"
	assert.Equal(t, "apexdatasystems.example.com", CompanyDomain(p))
}

func TestTemplateVars(t *testing.T) {
	p := testPersona()
	vars := templateVars(p, "list:users")

	assert.Regexp(t, `^[0-9a-f]{16}$`, vars["canary_1"])
	assert.Regexp(t, `^[0-9a-f]{16}$`, vars["canary_2"])
	assert.NotEqual(t, vars["canary_1"], vars["canary_2"])
	assert.Len(t, vars["short_id"], 8)
	assert.Regexp(t, `^[0-9a-f]{32}$`, vars["request_id"])
	assert.Equal(t, "novalabs.example.com", vars["company_domain"])

	_, err := time.Parse("2006-01-02T15:04:05Z", vars["timestamp"])
	assert.NoError(t, err)

	// The fabricated octet stays inside the private /24.
	octet := vars["octet"]
	assert.NotEmpty(t, octet)

	// Fresh salts on every call keep repeated probes distinguishable.
	again := templateVars(p, "list:users")
	assert.NotEqual(t, vars["canary_1"], again["canary_1"])
}

func TestLastOctetRange(t *testing.T) {
	for _, salt := range []string{"", "a", "abcd1234", "ffffffff", "00000000"} {
		o := lastOctet(salt)
		assert.GreaterOrEqual(t, o, 1, "salt %q", salt)
		assert.LessOrEqual(t, o, 254, "salt %q", salt)
	}
	// Deterministic for a given salt.
	assert.Equal(t, lastOctet("abcd1234"), lastOctet("abcd1234"))
}

func TestRateLimitHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	rateLimitHeaders(rec.Header())

	assert.Equal(t, "1000", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "997", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	assert.Regexp(t, `^[0-9a-f]{32}$`, rec.Header().Get("X-Request-Id"))
}

func TestWriteErrorStyles(t *testing.T) {
	t.Run("simple_json", func(t *testing.T) {
		p := testPersona()
		rec := httptest.NewRecorder()
		WriteError(rec, p, 404, "Not found", "no such resource")

		assert.Equal(t, 404, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Not Found", body["error"])
		assert.Equal(t, "Not found", body["message"])
		assert.Equal(t, float64(404), body["status"])
		assert.Equal(t, "no such resource", body["detail"])
	})

	t.Run("rfc7807", func(t *testing.T) {
		p := testPersona()
		p.ErrorStyle = models.ErrorRFC7807
		rec := httptest.NewRecorder()
		WriteError(rec, p, 400, "Invalid query parameter", "")

		assert.Equal(t, 400, rec.Code)
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "https://api.novalabs.example.com/errors/400", body["type"])
		assert.Equal(t, "Invalid query parameter", body["title"])
		assert.Equal(t, float64(400), body["status"])
		assert.NotContains(t, body, "detail")
	})

	t.Run("xml", func(t *testing.T) {
		p := testPersona()
		p.ErrorStyle = models.ErrorXML
		rec := httptest.NewRecorder()
		WriteError(rec, p, 503, "Service unavailable", `retry "later" <soon>`)

		assert.Equal(t, 503, rec.Code)
		assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))

		var parsed struct {
			Code    int    `xml:"code"`
			Message string `xml:"message"`
			Detail  string `xml:"detail"`
		}
		require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &parsed))
		assert.Equal(t, 503, parsed.Code)
		assert.Equal(t, "Service unavailable", parsed.Message)
		assert.Equal(t, `retry "later" <soon>`, parsed.Detail)
	})

	t.Run("html", func(t *testing.T) {
		p := testPersona()
		p.ErrorStyle = models.ErrorHTML
		rec := httptest.NewRecorder()
		WriteError(rec, p, 404, "Not found", "<script>alert(1)</script>")

		assert.Equal(t, 404, rec.Code)
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

		body := rec.Body.String()
		assert.Contains(t, body, "<!DOCTYPE html>")
		assert.Contains(t, body, "<h1>404 Not found</h1>")
		assert.Contains(t, body, "&lt;script&gt;")
		assert.NotContains(t, body, "<script>")
	})
}

func TestWriteErrorNeverNamesTheStack(t *testing.T) {
	for _, style := range []models.ErrorStyle{
		models.ErrorRFC7807, models.ErrorSimpleJSON, models.ErrorXML, models.ErrorHTML,
	} {
		p := testPersona()
		p.ErrorStyle = style
		rec := httptest.NewRecorder()
		WriteError(rec, p, 500, "Internal server error", "")

		body := strings.ToLower(rec.Body.String())
		assert.NotContains(t, body, "sundew", "style %s", style)
		assert.NotContains(t, body, "golang", "style %s", style)
		assert.NotContains(t, body, "goroutine", "style %s", style)
	}
}

func TestRenderValueResolvesAllPlaceholders(t *testing.T) {
	p := testPersona()

	for industry, template := range listTemplates {
		rendered := renderValue(template, templateVars(p, "list:test"))
		data, err := json.Marshal(rendered)
		require.NoError(t, err, "industry %s", industry)
		assert.NotContains(t, string(data), "{{", "industry %s left unresolved placeholders", industry)
	}

	for industry, template := range detailTemplates {
		rendered := renderValue(template, templateVars(p, "detail:test"))
		data, err := json.Marshal(rendered)
		require.NoError(t, err, "industry %s", industry)
		assert.NotContains(t, string(data), "{{", "industry %s left unresolved placeholders", industry)
	}
}

func TestRenderValueDoesNotMutateTables(t *testing.T) {
	p := testPersona()
	template := listTemplates[models.IndustrySaaS]

	before, err := json.Marshal(template)
	require.NoError(t, err)

	rendered := renderValue(template, templateVars(p, "list:users"))
	rendered["meta"] = map[string]any{"page": 99}

	after, err := json.Marshal(listTemplates[models.IndustrySaaS])
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

func TestDocsPath(t *testing.T) {
	tests := []struct {
		framework string
		want      string
	}{
		{"express/4.18.2", "/api-docs"},
		{"nestjs/10.3.0", "/api-docs"},
		{"django/4.2", "/docs"},
		{"flask/3.0.0", "/docs"},
		{"fastapi/0.109.0", "/docs"},
		{"rails/7.1", "/api/docs"},
		{"spring-boot/3.2.0", "/swagger-ui.html"},
		{"laravel/10.40", "/api/documentation"},
		{"gin/1.9.1", "/docs"},
		{"actix-web/4.4", "/docs"},
	}

	for _, tt := range tests {
		t.Run(tt.framework, func(t *testing.T) {
			p := testPersona()
			p.FrameworkFingerprint = tt.framework
			assert.Equal(t, tt.want, DocsPath(p))
		})
	}
}

func TestBuildOpenAPISpec(t *testing.T) {
	p := testPersona()
	spec := BuildOpenAPISpec(p)

	assert.Equal(t, "3.0.3", spec["openapi"])

	info, ok := spec["info"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "NovaLabs API", info["title"])

	paths, ok := spec["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/api/v2/auth/token")
	for path := range paths {
		assert.Truef(t, strings.HasPrefix(path, "/api/v2/"), "path %q escaped the prefix", path)
	}

	components, ok := spec["components"].(map[string]any)
	require.True(t, ok)
	schemes, ok := components["securitySchemes"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, schemes, "bearerAuth")
}

func TestBuildOpenAPISpecVariesByPersona(t *testing.T) {
	a := testPersona()

	b := testPersona()
	b.CompanyName = "ApexCloud"
	b.Industry = models.IndustryFintech
	b.AuthScheme = models.AuthOAuth2
	b.EndpointPrefix = "/v1"

	specA := BuildOpenAPISpec(a)
	specB := BuildOpenAPISpec(b)

	infoA := specA["info"].(map[string]any)
	infoB := specB["info"].(map[string]any)
	assert.NotEqual(t, infoA["title"], infoB["title"])

	schemesB := specB["components"].(map[string]any)["securitySchemes"].(map[string]any)
	assert.Contains(t, schemesB, "oauth2")
}

func TestOperationID(t *testing.T) {
	assert.Equal(t, "accounts_id_balance", operationID("/accounts/{id}/balance"))
	assert.Equal(t, "users", operationID("/users"))
}
