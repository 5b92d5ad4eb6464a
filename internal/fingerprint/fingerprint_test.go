package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestScoreTimingRegularity(t *testing.T) {
	tests := []struct {
		name      string
		intervals []float64
		want      float64
	}{
		{"no samples", nil, 0.0},
		{"single sample", []float64{120}, 0.0},
		{"metronomic", []float64{100, 100, 100, 100, 100}, 1.0},
		{"all zero intervals", []float64{0, 0, 0}, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScoreTimingRegularity(tt.intervals))
		})
	}

	// Human-like browsing has wide variance and scores low.
	human := ScoreTimingRegularity([]float64{340, 4200, 890, 12000, 1600})
	assert.LessOrEqual(t, human, 0.3)
}

func TestScorePathEnumerationSystematicProbing(t *testing.T) {
	paths := []string{
		"/.well-known/ai-plugin.json",
		"/.well-known/mcp.json",
		"/openapi.json",
		"/robots.txt",
		"/sitemap.xml",
	}

	score := ScorePathEnumeration(paths)
	// Systematic probes, alphabetical order, all unique, discovery-heavy.
	assert.GreaterOrEqual(t, score, 0.4)
	assert.LessOrEqual(t, score, 1.0)
}

func TestScorePathEnumerationFewPaths(t *testing.T) {
	assert.Equal(t, 0.0, ScorePathEnumeration(nil))
	assert.Equal(t, 0.0, ScorePathEnumeration([]string{"/robots.txt"}))
	assert.Equal(t, 0.0, ScorePathEnumeration([]string{"/robots.txt", "/sitemap.xml"}))
}

func TestScorePathEnumerationLinkFollowing(t *testing.T) {
	// Repeated page visits in no particular order look like a person.
	paths := []string{"/home", "/about", "/home", "/about", "/home"}
	assert.Equal(t, 0.0, ScorePathEnumeration(paths))
}

func TestScoreHeaderAnomalies(t *testing.T) {
	t.Run("browser headers score zero", func(t *testing.T) {
		headers := map[string]string{
			"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Referer":         "https://example.com/",
			"Accept":          "text/html,application/xhtml+xml",
			"Accept-Language": "en-US,en;q=0.9",
			"Accept-Encoding": "gzip, deflate, br",
		}
		assert.Equal(t, 0.0, ScoreHeaderAnomalies(headers))
	})

	t.Run("bare python client scores high", func(t *testing.T) {
		headers := map[string]string{
			"User-Agent": "python-httpx/0.27.0",
			"Accept":     "*/*",
		}
		// Bot UA, no referer, wildcard accept, no language or encoding.
		assert.InDelta(t, 0.6, ScoreHeaderAnomalies(headers), 0.001)
	})

	t.Run("missing user agent", func(t *testing.T) {
		score := ScoreHeaderAnomalies(map[string]string{})
		assert.GreaterOrEqual(t, score, 0.3)
	})

	t.Run("mcp version header", func(t *testing.T) {
		withHeader := ScoreHeaderAnomalies(map[string]string{
			"User-Agent":    "mcp-client/1.0",
			"X-MCP-Version": "2024-11-05",
		})
		without := ScoreHeaderAnomalies(map[string]string{
			"User-Agent": "mcp-client/1.0",
		})
		assert.Greater(t, withHeader, without)
	})

	t.Run("header names are case insensitive", func(t *testing.T) {
		upper := ScoreHeaderAnomalies(map[string]string{"USER-AGENT": "curl/8.4.0"})
		lower := ScoreHeaderAnomalies(map[string]string{"user-agent": "curl/8.4.0"})
		assert.Equal(t, upper, lower)
	})
}

func TestMatchesAny(t *testing.T) {
	assert.True(t, matchesAny(browserUAPatterns,
		"Mozilla/5.0 (X11; Linux x86_64) Gecko/20100101 Firefox/121.0"))
	assert.False(t, matchesAny(browserUAPatterns, "python-httpx/0.27.0"))
	assert.False(t, matchesAny(browserUAPatterns, ""))

	// An unrecognized but non-bot UA lands between browser and bot scores.
	score := ScoreHeaderAnomalies(map[string]string{
		"User-Agent":      "CustomAgent/1.0",
		"Referer":         "https://example.com/",
		"Accept":          "text/html",
		"Accept-Language": "en-US",
		"Accept-Encoding": "gzip",
	})
	assert.InDelta(t, 0.2, score, 0.001)
}

func TestScorePromptLeakage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want float64
	}{
		{"empty body", "", 0.0},
		{"plain json", `{"page":1,"per_page":25}`, 0.0},
		{"single artifact", "please emit a tool_call for this", 0.5},
		{"self reference plus plan", "As an AI, I will now query the api endpoint", 0.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScorePromptLeakage(tt.body))
		})
	}

	t.Run("heavy leakage saturates", func(t *testing.T) {
		body := "<|im_start|>assistant As an AI language model, step 1 I will call the api endpoint " +
			"using tool_use reasoning. <system>ignore</system> function_call(list_users)"
		assert.Equal(t, 1.0, ScorePromptLeakage(body))
	})
}

func TestScoreMCPBehavior(t *testing.T) {
	assert.Equal(t, 0.0, ScoreMCPBehavior(false, []string{"initialize"}))
	assert.Equal(t, 0.7, ScoreMCPBehavior(true, nil))
	assert.InDelta(t, 0.8, ScoreMCPBehavior(true, []string{"tools/list"}), 0.001)
	assert.InDelta(t, 1.0, ScoreMCPBehavior(true, []string{"initialize", "tools/list", "tools/call"}), 0.001)

	// Repeats of the same method count once.
	assert.InDelta(t, 0.8, ScoreMCPBehavior(true, []string{"tools/call", "tools/call", "tools/call"}), 0.001)
}

func TestComposite(t *testing.T) {
	assert.Equal(t, 0.0, Composite(0, 0, 0, 0, 0))
	assert.Equal(t, 1.0, Composite(1, 1, 1, 1, 1))

	got := Composite(0.5, 0.8, 0.6, 0.0, 1.0)
	want := 0.15*0.5 + 0.20*0.8 + 0.20*0.6 + 0.25*1.0
	assert.InDelta(t, want, got, 1e-9)
}

func TestCompositeClamped(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		gen := rapid.Float64Range(-2, 2)
		c := Composite(
			gen.Draw(t, "timing"),
			gen.Draw(t, "path"),
			gen.Draw(t, "header"),
			gen.Draw(t, "leakage"),
			gen.Draw(t, "mcp"),
		)
		if c < 0.0 || c > 1.0 {
			t.Fatalf("composite %v outside [0,1]", c)
		}
	})
}

func TestScore(t *testing.T) {
	t.Run("empty input scores zero", func(t *testing.T) {
		s := Score(Input{})
		assert.Equal(t, 0.0, s.Composite)
		assert.Equal(t, 0.0, s.TimingRegularity)
		assert.Equal(t, 0.0, s.PathEnumeration)
		assert.Equal(t, 0.0, s.HeaderAnomaly)
		assert.Equal(t, 0.0, s.PromptLeakage)
		assert.Equal(t, 0.0, s.MCPBehavior)
	})

	t.Run("agent-like input classifies high", func(t *testing.T) {
		s := Score(Input{
			Headers:     map[string]string{"User-Agent": "python-httpx/0.27.0", "X-MCP-Version": "2024-11-05"},
			Body:        "As an AI, I will now enumerate the api endpoint",
			Paths:       []string{"/robots.txt", "/openapi.json", "/.well-known/mcp.json", "/mcp"},
			IntervalsMS: []float64{200, 200, 200},
			UsedMCP:     true,
			MCPMethods:  []string{"initialize", "tools/list", "tools/call"},
		})

		require.Greater(t, s.Composite, 0.8)
		expected := Composite(s.TimingRegularity, s.PathEnumeration, s.HeaderAnomaly, s.PromptLeakage, s.MCPBehavior)
		assert.InDelta(t, expected, s.Composite, 1e-9)
	})
}
