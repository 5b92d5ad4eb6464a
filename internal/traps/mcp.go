package traps

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/sundew-sh/sundew/internal/models"
)

const (
	mcpProtocolVersion = "2024-11-05"
	mcpServerVersion   = "1.2.0"
)

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// jsonrpcResponse is the JSON-RPC 2.0 response envelope.
type jsonrpcResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      any           `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonrpcError `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func rpcResult(id, result any) jsonrpcResponse {
	return jsonrpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func rpcError(id any, code int, message string) jsonrpcResponse {
	return jsonrpcResponse{JSONRPC: "2.0", ID: id, Error: &jsonrpcError{Code: code, Message: message}}
}

// MCP impersonates a Model Context Protocol server over JSON-RPC 2.0. It is
// stateless: initialize, tools/list and tools/call can arrive in any order,
// and every tool result is canary-stamped fiction. HTTP status is always 200;
// the envelope carries success or failure.
type MCP struct {
	persona *models.Persona
	logger  *zap.SugaredLogger
}

// NewMCP creates the MCP trap for a persona.
func NewMCP(p *models.Persona, logger *zap.SugaredLogger) *MCP {
	return &MCP{persona: p, logger: logger}
}

// Routes mounts the JSON-RPC endpoint on the router.
func (t *MCP) Routes(r chi.Router) {
	r.Post("/mcp", t.handleJSONRPC)
}

func (t *MCP) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	if err := sleepLatency(r.Context(), t.persona); err != nil {
		return
	}
	w.Header().Set("X-Request-Id", templateVars(t.persona, "mcp")["request_id"])

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusOK, rpcError(nil, codeParseError, "Parse error"))
		return
	}

	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		writeJSON(w, http.StatusOK, rpcError(nil, codeParseError, "Parse error"))
		return
	}
	body, ok := probe.(map[string]any)
	if !ok {
		writeJSON(w, http.StatusOK, rpcError(nil, codeInvalidRequest, "Invalid Request"))
		return
	}

	id := body["id"]
	method, _ := body["method"].(string)
	params, _ := body["params"].(map[string]any)

	switch method {
	case "notifications/initialized":
		writeJSON(w, http.StatusOK, map[string]any{})
	case "initialize":
		writeJSON(w, http.StatusOK, t.handleInitialize(id))
	case "tools/list":
		writeJSON(w, http.StatusOK, t.handleToolsList(id))
	case "tools/call":
		writeJSON(w, http.StatusOK, t.handleToolsCall(id, params))
	default:
		writeJSON(w, http.StatusOK, rpcError(id, codeMethodNotFound, "Method not found: "+method))
	}
}

func (t *MCP) handleInitialize(id any) jsonrpcResponse {
	return rpcResult(id, map[string]any{
		"protocolVersion": mcpProtocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		"serverInfo": map[string]any{
			"name":    t.persona.MCPServerName,
			"version": mcpServerVersion,
		},
	})
}

func (t *MCP) handleToolsList(id any) jsonrpcResponse {
	return rpcResult(id, map[string]any{"tools": ToolsForPersona(t.persona)})
}

// ToolsForPersona returns the industry tool definitions with the persona's
// tool prefix applied, so different deployments expose different tool name
// patterns.
func ToolsForPersona(p *models.Persona) []mcp.Tool {
	base, ok := toolDefs[p.Industry]
	if !ok {
		base = toolDefs[models.IndustrySaaS]
	}
	tools := make([]mcp.Tool, len(base))
	for i, tool := range base {
		prefixed := tool
		prefixed.Name = p.MCPToolPrefix + tool.Name
		tools[i] = prefixed
	}
	return tools
}

func (t *MCP) handleToolsCall(id any, params map[string]any) jsonrpcResponse {
	rawName, _ := params["name"].(string)
	name := strings.TrimPrefix(rawName, t.persona.MCPToolPrefix)

	templates, ok := toolResults[t.persona.Industry]
	if !ok {
		templates = toolResults[models.IndustrySaaS]
	}
	template, known := templates[name]
	if !known {
		return rpcError(id, codeInvalidParams, "Unknown tool: "+rawName)
	}

	rendered := renderValue(template, templateVars(t.persona, name))
	text, err := json.Marshal(rendered)
	if err != nil {
		t.logger.Errorw("Failed to render tool result", "tool", name, "error", err)
		return rpcError(id, codeInvalidParams, "Tool execution failed")
	}

	return rpcResult(id, map[string]any{
		"content": []any{
			map[string]any{"type": "text", "text": string(text)},
		},
	})
}
