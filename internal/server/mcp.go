package server

import (
	"encoding/json"
	"net/http"
	"strings"
)

// MCP-style request envelope for tool discovery and invocation.
type MCPRequest struct {
	ID     string         `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

type MCPResponse struct {
	ID     string    `json:"id"`
	Result any       `json:"result,omitempty"`
	Error  *MCPError `json:"error,omitempty"`
}

type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602

	AskToolName = "ask_knowledge_graph"
)

var tools = []Tool{
	{
		Name:        AskToolName,
		Description: "Answer a question from the knowledge graph",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question": map[string]any{
					"type":        "string",
					"description": "Natural language question",
				},
			},
			"required": []string{"question"},
		},
	},
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	var req MCPRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, mcpError(req.ID, codeParseError, "Parse error"))
		return
	}

	var resp MCPResponse
	switch req.Method {
	case "tools/list":
		resp = MCPResponse{ID: req.ID, Result: map[string]any{"tools": tools}}
	case "tools/call":
		resp = s.callTool(r, req)
	default:
		resp = mcpError(req.ID, codeMethodNotFound, "Method not found")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) callTool(r *http.Request, req MCPRequest) MCPResponse {
	name, ok := req.Params["name"].(string)
	if !ok {
		return mcpError(req.ID, codeInvalidParams, "Invalid tool name")
	}
	if name != AskToolName {
		return mcpError(req.ID, codeMethodNotFound, "Tool not found")
	}

	arguments, _ := req.Params["arguments"].(map[string]any)
	question, _ := arguments["question"].(string)
	if strings.TrimSpace(question) == "" {
		return mcpError(req.ID, codeInvalidParams, "question is required")
	}
	return MCPResponse{ID: req.ID, Result: s.ask(r.Context(), question)}
}

func (s *Server) handleToolsList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}

func mcpError(id string, code int, message string) MCPResponse {
	return MCPResponse{ID: id, Error: &MCPError{Code: code, Message: message}}
}
