package traps

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sundew-sh/sundew/internal/models"
)

// Discovery serves the well-known files automated agents probe when first
// meeting an unknown service. Every file advertises the trap surfaces.
type Discovery struct {
	persona *models.Persona
	logger  *zap.SugaredLogger
}

// NewDiscovery creates the discovery trap for a persona.
func NewDiscovery(p *models.Persona, logger *zap.SugaredLogger) *Discovery {
	return &Discovery{persona: p, logger: logger}
}

// Routes mounts the discovery endpoints on the router.
func (d *Discovery) Routes(r chi.Router) {
	r.Get("/.well-known/ai-plugin.json", d.handleAIPlugin)
	r.Get("/.well-known/mcp.json", d.handleMCPManifest)
	r.Get("/robots.txt", d.handleRobots)
	r.Get("/sitemap.xml", d.handleSitemap)
	r.Get("/openapi.json", d.handleOpenAPI)
}

func (d *Discovery) handleAIPlugin(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, BuildAIPlugin(d.persona))
}

func (d *Discovery) handleMCPManifest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, BuildMCPManifest(d.persona))
}

func (d *Discovery) handleRobots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(BuildRobotsTxt(d.persona)))
}

func (d *Discovery) handleSitemap(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte(BuildSitemap(d.persona, time.Now().UTC())))
}

func (d *Discovery) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, BuildOpenAPISpec(d.persona))
}

// BuildAIPlugin assembles an OpenAI-style plugin manifest. AI agents probe
// this file when looking for plugin integrations.
func BuildAIPlugin(p *models.Persona) map[string]any {
	domain := CompanyDomain(p)
	modelName := strings.ToLower(strings.ReplaceAll(p.CompanyName, " ", "_"))
	return map[string]any{
		"schema_version":  "v1",
		"name_for_human":  fmt.Sprintf("%s API", p.CompanyName),
		"name_for_model":  modelName,
		"description_for_human": fmt.Sprintf(
			"Access %s's %s data and services through a secure API.",
			p.CompanyName, p.DataTheme),
		"description_for_model": fmt.Sprintf(
			"Plugin for interacting with %s's internal %s management system. "+
				"Supports CRUD operations on %s with authentication.",
			p.CompanyName, p.DataTheme, p.DataTheme),
		"auth": map[string]any{
			"type":                "service_http",
			"authorization_type":  "bearer",
			"verification_tokens": map[string]any{"openai": "placeholder"},
		},
		"api": map[string]any{
			"type":                  "openapi",
			"url":                   fmt.Sprintf("https://api.%s/openapi.json", domain),
			"is_user_authenticated": false,
		},
		"logo_url":       fmt.Sprintf("https://api.%s/logo.png", domain),
		"contact_email":  "api-support@" + domain,
		"legal_info_url": fmt.Sprintf("https://%s/legal", domain),
	}
}

// BuildMCPManifest assembles the /.well-known/mcp.json discovery document
// pointing MCP clients at the JSON-RPC trap.
func BuildMCPManifest(p *models.Persona) map[string]any {
	domain := CompanyDomain(p)
	prefix := strings.TrimSuffix(p.EndpointPrefix, "/")
	return map[string]any{
		"mcp_version": mcpProtocolVersion,
		"server": map[string]any{
			"name":    p.MCPServerName,
			"version": mcpServerVersion,
			"description": fmt.Sprintf(
				"%s internal %s service accessible via Model Context Protocol.",
				p.CompanyName, p.DataTheme),
		},
		"endpoints": map[string]any{
			"jsonrpc": fmt.Sprintf("https://api.%s/mcp", domain),
		},
		"capabilities": map[string]any{
			"tools":     true,
			"resources": false,
			"prompts":   false,
		},
		"authentication": map[string]any{
			"type":      "bearer",
			"token_url": fmt.Sprintf("https://api.%s%s/auth/token", domain, prefix),
		},
	}
}

// BuildRobotsTxt assembles a robots.txt whose Disallow entries point at the
// trap endpoints. Honest crawlers stay away; scanners follow the breadcrumbs.
func BuildRobotsTxt(p *models.Persona) string {
	prefix := strings.TrimSuffix(p.EndpointPrefix, "/")

	disallow := []string{
		prefix + "/",
		"/admin/",
		"/internal/",
		"/.well-known/",
	}
	for _, path := range robotsExtras[p.Industry] {
		disallow = append(disallow, prefix+path)
	}

	var b strings.Builder
	b.WriteString("User-agent: *\n")
	for _, path := range disallow {
		fmt.Fprintf(&b, "Disallow: %s\n", path)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Sitemap: https://api.%s/sitemap.xml\n", CompanyDomain(p))
	return b.String()
}

// BuildSitemap assembles an XML sitemap enumerating the discovery files and
// the persona's industry endpoints, stamped with the given date.
func BuildSitemap(p *models.Persona, now time.Time) string {
	domain := CompanyDomain(p)
	prefix := strings.TrimSuffix(p.EndpointPrefix, "/")
	lastmod := now.Format("2006-01-02")

	urls := []string{
		fmt.Sprintf("https://api.%s/openapi.json", domain),
		fmt.Sprintf("https://api.%s/.well-known/ai-plugin.json", domain),
		fmt.Sprintf("https://api.%s/.well-known/mcp.json", domain),
	}
	for _, path := range sitemapPaths[p.Industry] {
		urls = append(urls, fmt.Sprintf("https://api.%s%s%s", domain, prefix, path))
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">` + "\n")
	for _, url := range urls {
		b.WriteString("  <url>\n")
		fmt.Fprintf(&b, "    <loc>%s</loc>\n", url)
		fmt.Fprintf(&b, "    <lastmod>%s</lastmod>\n", lastmod)
		b.WriteString("    <changefreq>weekly</changefreq>\n")
		b.WriteString("  </url>\n")
	}
	b.WriteString("</urlset>\n")
	return b.String()
}
