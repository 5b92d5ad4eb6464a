package persona

import (
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/sundew-sh/sundew/internal/models"
)

func TestGenerateDeterministic(t *testing.T) {
	a := Generate(42)
	b := Generate(42)
	assert.Equal(t, a, b)

	c := Generate(43)
	assert.NotEqual(t, a, c)
}

func TestGeneratedPersonasValidate(t *testing.T) {
	for seed := int64(1); seed <= 200; seed++ {
		p := Generate(seed)
		require.NoError(t, p.Validate(), "seed %d", seed)
		assert.Equal(t, seed, p.Seed)
	}
}

func TestGenerateInternalConsistency(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Int64Range(1, 1<<31).Draw(t, "seed")
		p := Generate(seed)

		themes, ok := dataThemes[p.Industry]
		if !ok {
			t.Fatalf("seed %d: unknown industry %q", seed, p.Industry)
		}
		if !contains(themes, p.DataTheme) {
			t.Fatalf("seed %d: data theme %q does not belong to industry %q", seed, p.DataTheme, p.Industry)
		}
		if !contains(mcpToolPrefixes[p.Industry], p.MCPToolPrefix) {
			t.Fatalf("seed %d: tool prefix %q does not belong to industry %q", seed, p.MCPToolPrefix, p.Industry)
		}
		if !contains(ServerHeaders, p.ServerHeader) {
			t.Fatalf("seed %d: server header %q not in the allowed list", seed, p.ServerHeader)
		}
	})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestPersonaYAMLRoundTrip(t *testing.T) {
	p := Generate(7)
	path := filepath.Join(t.TempDir(), "personas", "p7.yaml")

	require.NoError(t, SaveYAML(p, path))

	loaded, err := LoadYAML(path)
	require.NoError(t, err)
	assert.Equal(t, p, loaded)
}

func TestLoadYAMLErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadYAML(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid persona rejected", func(t *testing.T) {
		p := Generate(7)
		p.Industry = "astrology"
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, SaveYAML(p, path))

		_, err := LoadYAML(path)
		assert.ErrorContains(t, err, "industry")
	})
}

func TestCanary(t *testing.T) {
	p := Generate(42)
	hex16 := regexp.MustCompile(`^[0-9a-f]{16}$`)

	c1 := Canary(p, "auth:abc")
	assert.Regexp(t, hex16, c1)

	// Same persona and salt always derive the same token.
	assert.Equal(t, c1, Canary(p, "auth:abc"))

	// Different salts and different personas diverge.
	assert.NotEqual(t, c1, Canary(p, "auth:def"))
	assert.NotEqual(t, c1, Canary(Generate(43), "auth:abc"))
}

func TestCanaryDistinctAcrossSeeds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.Int64Range(1, 1<<31).Draw(t, "a")
		b := rapid.Int64Range(1, 1<<31).Draw(t, "b")
		if a == b {
			return
		}
		if Canary(Generate(a), "probe") == Canary(Generate(b), "probe") {
			t.Fatalf("seeds %d and %d derived the same canary", a, b)
		}
	})
}

func TestPersonaValidate(t *testing.T) {
	valid := func() *models.Persona { return Generate(42) }

	tests := []struct {
		name    string
		mutate  func(*models.Persona)
		wantErr string
	}{
		{"empty company", func(p *models.Persona) { p.CompanyName = "" }, "company_name"},
		{"unknown industry", func(p *models.Persona) { p.Industry = "piracy" }, "industry"},
		{"prefix without slash", func(p *models.Persona) { p.EndpointPrefix = "api/v1" }, "endpoint_prefix"},
		{"prefix trailing slash", func(p *models.Persona) { p.EndpointPrefix = "/api/v1/" }, "endpoint_prefix"},
		{"unknown error style", func(p *models.Persona) { p.ErrorStyle = "soap" }, "error_style"},
		{"unknown auth scheme", func(p *models.Persona) { p.AuthScheme = "kerberos" }, "auth_scheme"},
		{"latency too low", func(p *models.Persona) { p.ResponseLatencyMS = 5 }, "response_latency_ms"},
		{"latency too high", func(p *models.Persona) { p.ResponseLatencyMS = 5000 }, "response_latency_ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			assert.ErrorContains(t, p.Validate(), tt.wantErr)
		})
	}
}
