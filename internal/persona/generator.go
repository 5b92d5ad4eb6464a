// Package persona generates and serves the synthetic identity of a
// deployment: the company fiction, its endpoint surface, and the cached
// response templates that shape every emitted byte.
package persona

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/sundew-sh/sundew/internal/models"
)

var companyPrefixes = []string{
	"Nova", "Apex", "Cirrus", "Vortex", "Helix", "Prism", "Nexus", "Vertex",
	"Stratos", "Cipher", "Pulse", "Quantum", "Atlas", "Zenith", "Flux",
	"Ember", "Cobalt", "Nimbus", "Drift", "Forge", "Lumen", "Crest",
}

var companySuffixes = []string{
	"Systems", "Labs", "AI", "Cloud", "Data", "Tech", "Platform", "IO",
	"Solutions", "Analytics", "Works", "Logic", "Base", "Hub", "Core",
	"Stack", "Flow", "Net", "API", "Ops",
}

var apiStyles = []string{"rest", "graphql", "jsonrpc"}

var frameworks = []string{
	"express/4.18.2",
	"django/4.2",
	"rails/7.1",
	"spring-boot/3.2.0",
	"fastapi/0.109.0",
	"flask/3.0.0",
	"nestjs/10.3.0",
	"gin/1.9.1",
	"laravel/10.40",
	"actix-web/4.4",
}

var errorStyles = []models.ErrorStyle{
	models.ErrorRFC7807,
	models.ErrorSimpleJSON,
	models.ErrorHTML,
	models.ErrorXML,
}

var authSchemes = []models.AuthScheme{
	models.AuthBearer,
	models.AuthAPIKeyHdr,
	models.AuthAPIKeyQuery,
	models.AuthBasic,
	models.AuthOAuth2,
}

var dataThemes = map[string][]string{
	models.IndustryFintech:    {"payments", "transactions", "accounts", "transfers", "invoices"},
	models.IndustrySaaS:       {"users", "workspaces", "subscriptions", "integrations", "webhooks"},
	models.IndustryHealthcare: {"patients", "appointments", "records", "prescriptions", "providers"},
	models.IndustryEcommerce:  {"products", "orders", "carts", "inventory", "reviews"},
	models.IndustryDevtools:   {"repositories", "builds", "deployments", "pipelines", "artifacts"},
	models.IndustryLogistics:  {"shipments", "warehouses", "routes", "tracking", "carriers"},
}

// ServerHeaders is the shared allowed list of Server header values a
// persona may advertise.
var ServerHeaders = []string{
	"nginx/1.24.0",
	"nginx/1.25.3",
	"Apache/2.4.58",
	"cloudflare",
	"AmazonS3",
	"gws",
	"Microsoft-IIS/10.0",
	"openresty/1.25.3.1",
}

var endpointPrefixes = []string{
	"/api/v1", "/api/v2", "/api/v3", "/v1", "/v2", "/rest/v1", "/api", "/service/api",
}

var mcpServerNames = []string{
	"data-api", "platform-api", "core-service", "main-api",
	"backend", "service-hub", "api-gateway", "data-service",
}

var mcpToolPrefixes = map[string][]string{
	models.IndustryFintech:    {"payment_", "txn_", "account_", "finance_"},
	models.IndustrySaaS:       {"workspace_", "user_", "tenant_", "app_"},
	models.IndustryHealthcare: {"patient_", "clinical_", "health_", "medical_"},
	models.IndustryEcommerce:  {"product_", "order_", "catalog_", "shop_"},
	models.IndustryDevtools:   {"repo_", "build_", "deploy_", "pipeline_"},
	models.IndustryLogistics:  {"shipment_", "route_", "warehouse_", "tracking_"},
}

// NewSeed returns a random seed suitable for Generate.
func NewSeed() int64 {
	return rand.Int63n(1 << 31)
}

// Generate produces a random but internally consistent persona. The same
// seed always yields the same persona.
func Generate(seed int64) *models.Persona {
	rng := rand.New(rand.NewSource(seed))

	industry := pick(rng, models.Industries)
	companyName := pick(rng, companyPrefixes) + pick(rng, companySuffixes)
	dataTheme := pick(rng, dataThemes[industry])
	endpointPrefix := pick(rng, endpointPrefixes)
	toolPrefix := pick(rng, mcpToolPrefixes[industry])

	return &models.Persona{
		Seed:                 seed,
		CompanyName:          companyName,
		Industry:             industry,
		APIStyle:             pick(rng, apiStyles),
		FrameworkFingerprint: pick(rng, frameworks),
		ErrorStyle:           pick(rng, errorStyles),
		AuthScheme:           pick(rng, authSchemes),
		DataTheme:            dataTheme,
		ResponseLatencyMS:    20 + rng.Intn(281),
		ServerHeader:         pick(rng, ServerHeaders),
		EndpointPrefix:       endpointPrefix,
		ExtraHeaders:         generateExtraHeaders(rng),
		MCPServerName:        pick(rng, mcpServerNames),
		MCPToolPrefix:        toolPrefix,
	}
}

func generateExtraHeaders(rng *rand.Rand) map[string]string {
	headers := map[string]string{}

	if rng.Float64() < 0.6 {
		headers["X-Request-Id"] = "{{request_id}}"
	}
	if rng.Float64() < 0.4 {
		headers["X-RateLimit-Limit"] = strconv.Itoa(pick(rng, []int{100, 500, 1000, 5000}))
	}
	if rng.Float64() < 0.3 {
		headers["X-Powered-By"] = pick(rng, []string{"Express", "Django", "Rails", "Spring"})
	}
	if rng.Float64() < 0.5 {
		headers["X-Response-Time"] = "{{response_time_ms}}ms"
	}

	return headers
}

func pick[T any](rng *rand.Rand, items []T) T {
	return items[rng.Intn(len(items))]
}

// LoadYAML reads and validates a persisted persona.
func LoadYAML(path string) (*models.Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona file: %w", err)
	}

	var p models.Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse persona file %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("persona file %s: %w", path, err)
	}

	return &p, nil
}

// SaveYAML persists a persona, creating parent directories as needed.
func SaveYAML(p *models.Persona, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create persona directory: %w", err)
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal persona: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write persona file: %w", err)
	}

	return nil
}
