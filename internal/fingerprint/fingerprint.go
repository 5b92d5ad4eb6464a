// Package fingerprint scores HTTP traffic along five behavioral signals to
// separate humans, scanners, AI-assisted tools, and autonomous AI agents.
//
// Each signal yields a score in [0,1]; the composite is a fixed weighted
// combination of the five. The weights and thresholds are part of the
// service's observable contract and must not drift.
package fingerprint

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/sundew-sh/sundew/internal/models"
)

// Signal weights for the composite score.
const (
	WeightTiming  = 0.15
	WeightPath    = 0.20
	WeightHeader  = 0.20
	WeightLeakage = 0.20
	WeightMCP     = 0.25
)

var systematicPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^/\.(well-known|git|env|svn|DS_Store)`),
	regexp.MustCompile(`^/(robots\.txt|sitemap\.xml|openapi\.json)`),
	regexp.MustCompile(`^/api/(v\d+/)?[a-z]+$`),
	regexp.MustCompile(`^/(admin|internal|debug|config|status|health)`),
}

var botUAPattern = regexp.MustCompile(`(?i)python-requests|python-httpx|node-fetch|axios|httpie|curl|wget|go-http-client|java/|openai|anthropic|langchain|llama|mcp-client|bot|crawler|spider|scraper`)

var browserUAPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Mozilla/5\.0.*Chrome/`),
	regexp.MustCompile(`(?i)Mozilla/5\.0.*Firefox/`),
	regexp.MustCompile(`(?i)Mozilla/5\.0.*Safari/`),
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, pat := range patterns {
		if pat.MatchString(s) {
			return true
		}
	}
	return false
}

var promptLeakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)as an ai\b`),
	regexp.MustCompile(`(?i)as a language model\b`),
	regexp.MustCompile(`(?i)i'?m an ai\b`),
	regexp.MustCompile(`(?i)i'?m a language model\b`),
	regexp.MustCompile(`(?i)</?(?:system|user|assistant|human|tool_use|tool_result)\b`),
	regexp.MustCompile(`(?i)</?(?:function_call|observation|thought|thinking|scratchpad)\b`),
	regexp.MustCompile(`(?i)\bfunction_call\s*\(`),
	regexp.MustCompile(`(?i)\btool_call\b`),
	regexp.MustCompile("(?i)```(?:json|xml|yaml)\\s*\\{"),
	regexp.MustCompile(`(?i)<\|(?:im_start|im_end|system|user|assistant)\|>`),
	regexp.MustCompile(`(?i)\b(?:step \d+|let me|i will now|first,? i)\b.*\b(?:api|endpoint|request)\b`),
	regexp.MustCompile(`(?i)(?:chain.?of.?thought|reasoning|tool.?use)`),
}

// discoveryPaths are the probe targets automated agents hit when first
// meeting an unknown service.
var discoveryPaths = map[string]struct{}{
	"/robots.txt":                 {},
	"/sitemap.xml":                {},
	"/openapi.json":               {},
	"/.well-known/ai-plugin.json": {},
	"/.well-known/mcp.json":       {},
}

// ScoreTimingRegularity scores how regular the inter-request intervals are.
// Humans produce wide variance; bots are near-metronomic. Fewer than two
// samples score 0.
func ScoreTimingRegularity(intervalsMS []float64) float64 {
	if len(intervalsMS) < 2 {
		return 0.0
	}

	var sum float64
	for _, v := range intervalsMS {
		sum += v
	}
	mean := sum / float64(len(intervalsMS))
	if mean == 0 {
		return 1.0
	}

	// Sample standard deviation over n-1.
	var sq float64
	for _, v := range intervalsMS {
		d := v - mean
		sq += d * d
	}
	stdev := math.Sqrt(sq / float64(len(intervalsMS)-1))
	cv := stdev / mean

	switch {
	case cv < 0.05:
		return 1.0
	case cv < 0.15:
		return 0.8
	case cv < 0.3:
		return 0.5
	case cv < 0.5:
		return 0.3
	default:
		return 0.1
	}
}

// ScorePathEnumeration scores whether the ordered path history looks like
// systematic probing rather than link-following. Fewer than three paths
// score 0.
func ScorePathEnumeration(paths []string) float64 {
	if len(paths) < 3 {
		return 0.0
	}

	score := 0.0

	// Unique paths, preserving first-seen order.
	seen := make(map[string]struct{}, len(paths))
	ordered := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			ordered = append(ordered, p)
		}
	}

	systematicHits := 0
	for p := range seen {
		for _, pat := range systematicPatterns {
			if pat.MatchString(p) {
				systematicHits++
				break
			}
		}
	}
	if systematicHits >= 3 {
		score += 0.4
	} else if systematicHits >= 1 {
		score += 0.2
	}

	sorted := make([]string, len(ordered))
	copy(sorted, ordered)
	sort.Strings(sorted)
	alphabetical := true
	for i := range ordered {
		if ordered[i] != sorted[i] {
			alphabetical = false
			break
		}
	}
	if alphabetical {
		score += 0.3
	}

	uniqueRatio := float64(len(seen)) / float64(len(paths))
	if uniqueRatio > 0.9 {
		score += 0.2
	} else if uniqueRatio > 0.7 {
		score += 0.1
	}

	visitedDiscovery := 0
	for p := range seen {
		if _, ok := discoveryPaths[p]; ok {
			visitedDiscovery++
		}
	}
	if visitedDiscovery >= 2 {
		score += 0.2
	}

	return math.Min(score, 1.0)
}

// ScoreHeaderAnomalies scores header patterns common in automated clients:
// missing or bot-like User-Agent, absent Referer, non-browser Accept
// headers, and AI/MCP specific headers.
func ScoreHeaderAnomalies(headers map[string]string) float64 {
	h := make(map[string]string, len(headers))
	for k, v := range headers {
		h[strings.ToLower(k)] = v
	}
	score := 0.0

	ua := h["user-agent"]
	if ua == "" {
		score += 0.3
	} else if botUAPattern.MatchString(ua) {
		score += 0.3
	} else if !matchesAny(browserUAPatterns, ua) {
		score += 0.2
	}

	if _, ok := h["referer"]; !ok {
		score += 0.1
	}

	switch h["accept"] {
	case "application/json":
		score += 0.1
	case "*/*":
		score += 0.05
	case "":
		score += 0.15
	}

	if _, ok := h["accept-language"]; !ok {
		score += 0.1
	}
	if _, ok := h["accept-encoding"]; !ok {
		score += 0.05
	}

	if _, ok := h["x-mcp-version"]; ok {
		score += 0.3
	} else if _, ok := h["x-openai-api-key"]; ok {
		score += 0.3
	}

	return math.Min(score, 1.0)
}

// ScorePromptLeakage scores whether the request body carries LLM artifacts:
// AI self-reference, role tags, tool-call syntax, special tokens, or
// chain-of-thought phrasing.
func ScorePromptLeakage(body string) float64 {
	if body == "" {
		return 0.0
	}

	matches := 0
	for _, pat := range promptLeakPatterns {
		if pat.MatchString(body) {
			matches++
		}
	}

	switch {
	case matches >= 4:
		return 1.0
	case matches >= 2:
		return 0.8
	case matches >= 1:
		return 0.5
	default:
		return 0.0
	}
}

// ScoreMCPBehavior scores MCP protocol usage. Humans do not speak JSON-RPC
// MCP directly, so any usage carries a high base score.
func ScoreMCPBehavior(usedMCP bool, mcpMethods []string) float64 {
	if !usedMCP {
		return 0.0
	}

	score := 0.7
	for _, m := range []string{"initialize", "tools/list", "tools/call"} {
		for _, called := range mcpMethods {
			if called == m {
				score += 0.1
				break
			}
		}
	}

	return math.Min(score, 1.0)
}

// Composite computes the fixed weighted combination of the five signal
// scores, clamped to [0,1].
func Composite(timing, path, header, leakage, mcp float64) float64 {
	raw := WeightTiming*timing +
		WeightPath*path +
		WeightHeader*header +
		WeightLeakage*leakage +
		WeightMCP*mcp
	return math.Max(0.0, math.Min(1.0, raw))
}

// Input carries everything the scorer needs for one request in the context
// of its session history.
type Input struct {
	Headers     map[string]string
	Body        string
	Paths       []string
	IntervalsMS []float64
	UsedMCP     bool
	MCPMethods  []string
}

// Score runs all five signal analyzers and computes the composite.
func Score(in Input) models.FingerprintScores {
	s := models.FingerprintScores{
		TimingRegularity: ScoreTimingRegularity(in.IntervalsMS),
		PathEnumeration:  ScorePathEnumeration(in.Paths),
		HeaderAnomaly:    ScoreHeaderAnomalies(in.Headers),
		PromptLeakage:    ScorePromptLeakage(in.Body),
		MCPBehavior:      ScoreMCPBehavior(in.UsedMCP, in.MCPMethods),
	}
	s.Composite = Composite(s.TimingRegularity, s.PathEnumeration, s.HeaderAnomaly, s.PromptLeakage, s.MCPBehavior)
	return s
}
