// Package traps implements the three attacker-facing surfaces: the REST
// API trap, the MCP JSON-RPC trap, and the AI discovery endpoints. Every
// byte served here is persona-shaped fiction stamped with canary tokens.
package traps

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sundew-sh/sundew/internal/interp"
	"github.com/sundew-sh/sundew/internal/models"
	"github.com/sundew-sh/sundew/internal/persona"
)

// CompanyDomain derives the persona's fictional domain. All fabricated
// domains stay under .example.com.
func CompanyDomain(p *models.Persona) string {
	return strings.ToLower(strings.ReplaceAll(p.CompanyName, " ", "")) + ".example.com"
}

// templateVars builds the interpolation context for one response. The two
// canaries are salted per request so repeated probes yield distinct but
// attributable tokens.
func templateVars(p *models.Persona, endpoint string) map[string]string {
	salt := uuid.NewString()[:8]
	return map[string]string{
		"canary_1":       persona.Canary(p, fmt.Sprintf("%s:1:%s", endpoint, salt)),
		"canary_2":       persona.Canary(p, fmt.Sprintf("%s:2:%s", endpoint, salt)),
		"short_id":       uuid.NewString()[:8],
		"timestamp":      time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		"request_id":     strings.ReplaceAll(uuid.NewString(), "-", ""),
		"company_domain": CompanyDomain(p),
		"octet":          strconv.Itoa(lastOctet(salt)),
	}
}

// lastOctet maps a salt onto [1,254] so fabricated addresses stay inside
// 10.0.1.0/24.
func lastOctet(salt string) int {
	h := fnv.New32a()
	h.Write([]byte(salt))
	return int(h.Sum32()%254) + 1
}

// rateLimitHeaders are the static quota headers every REST trap response
// carries.
func rateLimitHeaders(h http.Header) {
	h.Set("X-Request-Id", strings.ReplaceAll(uuid.NewString(), "-", ""))
	h.Set("X-RateLimit-Limit", "1000")
	h.Set("X-RateLimit-Remaining", "997")
	h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Unix()+3600, 10))
}

// writeJSON renders v and writes it with the given status. Marshal failures
// degrade to an empty object rather than leaking an internal error.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte("{}")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// WriteError emits an error body matching the persona's error style. The
// body never names the real stack; it imitates the advertised framework.
func WriteError(w http.ResponseWriter, p *models.Persona, status int, message, detail string) {
	switch p.ErrorStyle {
	case models.ErrorRFC7807:
		body := map[string]any{
			"type":   fmt.Sprintf("https://api.%s/errors/%d", CompanyDomain(p), status),
			"title":  message,
			"status": status,
		}
		if detail != "" {
			body["detail"] = detail
		}
		data, _ := json.Marshal(body)
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(status)
		w.Write(data)
	case models.ErrorXML:
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
		b.WriteString("<error>\n")
		fmt.Fprintf(&b, "  <code>%d</code>\n", status)
		fmt.Fprintf(&b, "  <message>%s</message>\n", xmlEscape(message))
		fmt.Fprintf(&b, "  <status>%d</status>\n", status)
		if detail != "" {
			fmt.Fprintf(&b, "  <detail>%s</detail>\n", xmlEscape(detail))
		}
		b.WriteString("</error>\n")
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(status)
		w.Write([]byte(b.String()))
	case models.ErrorHTML:
		var b strings.Builder
		fmt.Fprintf(&b, "<!DOCTYPE html>\n<html>\n<head><title>%d %s</title></head>\n", status, htmlEscape(message))
		fmt.Fprintf(&b, "<body>\n<h1>%d %s</h1>\n", status, htmlEscape(message))
		if detail != "" {
			fmt.Fprintf(&b, "<p>%s</p>\n", htmlEscape(detail))
		}
		b.WriteString("</body>\n</html>\n")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		w.Write([]byte(b.String()))
	default: // simple_json
		body := map[string]any{
			"error":   http.StatusText(status),
			"message": message,
			"status":  status,
		}
		if detail != "" {
			body["detail"] = detail
		}
		writeJSON(w, status, body)
	}
}

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

// renderValue deep-copies a template value with every {{name}} placeholder
// resolved.
func renderValue(v map[string]any, vars map[string]string) map[string]any {
	out, _ := interp.Value(v, vars).(map[string]any)
	return out
}
