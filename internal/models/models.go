// Package models defines the shared data types for the deception service:
// the deployment persona, response templates, captured request events,
// per-source sessions, and the fingerprint score record.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Classification is the traffic class assigned to an event or session.
type Classification string

const (
	ClassUnknown    Classification = "unknown"
	ClassHuman      Classification = "human"
	ClassAutomated  Classification = "automated"
	ClassAIAssisted Classification = "ai_assisted"
	ClassAIAgent    Classification = "ai_agent"
)

// Valid reports whether c is one of the known classifications.
func (c Classification) Valid() bool {
	switch c {
	case ClassUnknown, ClassHuman, ClassAutomated, ClassAIAssisted, ClassAIAgent:
		return true
	}
	return false
}

// TrapType identifies which trap surface handled a request.
type TrapType string

const (
	TrapRESTAPI   TrapType = "rest_api"
	TrapMCP       TrapType = "mcp"
	TrapDiscovery TrapType = "discovery"
	TrapUnmatched TrapType = "unmatched"
)

// AuthScheme is the fake authentication style a persona advertises.
type AuthScheme string

const (
	AuthBearer      AuthScheme = "bearer"
	AuthAPIKeyHdr   AuthScheme = "api_key_header"
	AuthAPIKeyQuery AuthScheme = "api_key_query"
	AuthBasic       AuthScheme = "basic"
	AuthOAuth2      AuthScheme = "oauth2"
)

// ErrorStyle selects the wire format of persona-styled error bodies.
type ErrorStyle string

const (
	ErrorRFC7807    ErrorStyle = "rfc7807"
	ErrorSimpleJSON ErrorStyle = "simple_json"
	ErrorHTML       ErrorStyle = "html"
	ErrorXML        ErrorStyle = "xml"
)

// Industries recognised by the persona generator and the template packs.
const (
	IndustryFintech    = "fintech"
	IndustrySaaS       = "saas"
	IndustryHealthcare = "healthcare"
	IndustryEcommerce  = "ecommerce"
	IndustryDevtools   = "devtools"
	IndustryLogistics  = "logistics"
)

// Industries lists every industry tag in generation order.
var Industries = []string{
	IndustryFintech,
	IndustrySaaS,
	IndustryHealthcare,
	IndustryEcommerce,
	IndustryDevtools,
	IndustryLogistics,
}

// Persona is the synthetic identity of one deployment. It is generated once
// from a seed, shared read-only for the process lifetime, and shapes every
// byte the service emits.
type Persona struct {
	Seed                 int64             `json:"seed" yaml:"seed"`
	CompanyName          string            `json:"company_name" yaml:"company_name"`
	Industry             string            `json:"industry" yaml:"industry"`
	APIStyle             string            `json:"api_style" yaml:"api_style"`
	FrameworkFingerprint string            `json:"framework_fingerprint" yaml:"framework_fingerprint"`
	ErrorStyle           ErrorStyle        `json:"error_style" yaml:"error_style"`
	AuthScheme           AuthScheme        `json:"auth_scheme" yaml:"auth_scheme"`
	DataTheme            string            `json:"data_theme" yaml:"data_theme"`
	ResponseLatencyMS    int               `json:"response_latency_ms" yaml:"response_latency_ms"`
	ServerHeader         string            `json:"server_header" yaml:"server_header"`
	EndpointPrefix       string            `json:"endpoint_prefix" yaml:"endpoint_prefix"`
	ExtraHeaders         map[string]string `json:"extra_headers" yaml:"extra_headers"`
	MCPServerName        string            `json:"mcp_server_name" yaml:"mcp_server_name"`
	MCPToolPrefix        string            `json:"mcp_tool_prefix" yaml:"mcp_tool_prefix"`
}

// Validate checks the structural invariants a persona must satisfy before
// the server will serve traffic with it.
func (p *Persona) Validate() error {
	if p.CompanyName == "" {
		return fmt.Errorf("persona: company_name is empty")
	}
	found := false
	for _, ind := range Industries {
		if p.Industry == ind {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("persona: unknown industry %q", p.Industry)
	}
	if !strings.HasPrefix(p.EndpointPrefix, "/") || strings.HasSuffix(p.EndpointPrefix, "/") {
		return fmt.Errorf("persona: endpoint_prefix %q must start with '/' and have no trailing slash", p.EndpointPrefix)
	}
	switch p.ErrorStyle {
	case ErrorRFC7807, ErrorSimpleJSON, ErrorHTML, ErrorXML:
	default:
		return fmt.Errorf("persona: unknown error_style %q", p.ErrorStyle)
	}
	switch p.AuthScheme {
	case AuthBearer, AuthAPIKeyHdr, AuthAPIKeyQuery, AuthBasic, AuthOAuth2:
	default:
		return fmt.Errorf("persona: unknown auth_scheme %q", p.AuthScheme)
	}
	if p.ResponseLatencyMS < 10 || p.ResponseLatencyMS > 2000 {
		return fmt.Errorf("persona: response_latency_ms %d outside [10,2000]", p.ResponseLatencyMS)
	}
	return nil
}

// ResponseTemplate is one cached response owned by the persona engine.
// Endpoint may contain {{name}} segments, each matching a single path
// component.
type ResponseTemplate struct {
	Endpoint     string            `json:"endpoint"`
	Method       string            `json:"method"`
	StatusCode   int               `json:"status_code"`
	ContentType  string            `json:"content_type"`
	Headers      map[string]string `json:"headers,omitempty"`
	BodyTemplate string            `json:"body_template"`
	Description  string            `json:"description,omitempty"`
}

// FingerprintScores holds the five behavioral signal scores and their
// weighted composite, all in [0,1].
type FingerprintScores struct {
	TimingRegularity float64 `json:"timing_regularity"`
	PathEnumeration  float64 `json:"path_enumeration"`
	HeaderAnomaly    float64 `json:"header_anomaly"`
	PromptLeakage    float64 `json:"prompt_leakage"`
	MCPBehavior      float64 `json:"mcp_behavior"`
	Composite        float64 `json:"composite"`
}

// Signals returns the five non-composite scores keyed by signal name.
func (f FingerprintScores) Signals() map[string]float64 {
	return map[string]float64{
		"timing_regularity": f.TimingRegularity,
		"path_enumeration":  f.PathEnumeration,
		"header_anomaly":    f.HeaderAnomaly,
		"prompt_leakage":    f.PromptLeakage,
		"mcp_behavior":      f.MCPBehavior,
	}
}

// RequestEvent is one captured inbound request. It is immutable after the
// response is emitted, except for analyst-supplied Notes.
type RequestEvent struct {
	ID              string            `json:"id"`
	Timestamp       time.Time         `json:"timestamp"`
	SessionID       string            `json:"session_id,omitempty"`
	SourceIP        string            `json:"source_ip"`
	SourcePort      int               `json:"source_port,omitempty"`
	Method          string            `json:"method"`
	Path            string            `json:"path"`
	QueryParams     map[string]string `json:"query_params,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            string            `json:"body,omitempty"`
	BodyJSON        json.RawMessage   `json:"body_json,omitempty"`
	ContentType     string            `json:"content_type,omitempty"`
	UserAgent       string            `json:"user_agent,omitempty"`
	Scores          FingerprintScores `json:"fingerprint_scores"`
	Classification  Classification    `json:"classification"`
	TrapType        TrapType          `json:"trap_type"`
	MatchedEndpoint string            `json:"matched_endpoint,omitempty"`
	ResponseStatus  int               `json:"response_status"`
	Notes           string            `json:"notes,omitempty"`
}

// MarshalBinary implements encoding.BinaryMarshaler for storage.
func (e *RequestEvent) MarshalBinary() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for storage.
func (e *RequestEvent) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, e)
}

// Session groups the requests of one source IP within the idle window.
type Session struct {
	ID                 string            `json:"id"`
	SourceIP           string            `json:"source_ip"`
	FirstSeen          time.Time         `json:"first_seen"`
	LastSeen           time.Time         `json:"last_seen"`
	RequestCount       int               `json:"request_count"`
	RequestIDs         []string          `json:"request_ids,omitempty"`
	Classification     Classification    `json:"classification"`
	Scores             FingerprintScores `json:"fingerprint_scores"`
	EndpointsHit       []string          `json:"endpoints_hit,omitempty"`
	TrapTypesTriggered []TrapType        `json:"trap_types_triggered,omitempty"`
	Tags               []string          `json:"tags,omitempty"`
	Notes              string            `json:"notes,omitempty"`
}

// HasTrapType reports whether the session already recorded the given trap.
func (s *Session) HasTrapType(t TrapType) bool {
	for _, tt := range s.TrapTypesTriggered {
		if tt == t {
			return true
		}
	}
	return false
}

// MarshalBinary implements encoding.BinaryMarshaler for storage.
func (s *Session) MarshalBinary() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for storage.
func (s *Session) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, s)
}
