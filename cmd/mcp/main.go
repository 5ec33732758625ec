package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// protocolVersion is the MCP revision this bridge speaks
const protocolVersion = "2024-11-05"

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      serverInfo     `json:"serverInfo"`
}

type tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema schema `json:"inputSchema"`
}

type schema struct {
	Type       string           `json:"type"`
	Properties map[string]field `json:"properties,omitempty"`
	Required   []string         `json:"required,omitempty"`
}

type field struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
}

var noArgs = schema{Type: "object", Properties: map[string]field{}}

var idArg = schema{
	Type: "object",
	Properties: map[string]field{
		"subscription_id": {Type: "string", Description: "ID подписки (число)"},
	},
	Required: []string{"subscription_id"},
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type callResult struct {
	Content []textBlock `json:"content"`
	IsError bool        `json:"isError,omitempty"`
}

type textBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// MCP Server
type MCPServer struct {
	apiURL      string
	apiUsername string
	apiPassword string
	client      *http.Client
}

func NewMCPServer(apiURL, username, password string) *MCPServer {
	return &MCPServer{
		apiURL:      strings.TrimRight(apiURL, "/"),
		apiUsername: username,
		apiPassword: password,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

// Run serves newline-delimited JSON-RPC requests until in is exhausted
func (s *MCPServer) Run(in io.Reader, out io.Writer, errOut io.Writer) {
	reader := bufio.NewReader(in)
	enc := json.NewEncoder(out)

	for {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			fmt.Fprintf(errOut, "Error reading: %v\n", err)
			return
		}

		if trimmed := strings.TrimSpace(line); trimmed != "" {
			var req rpcRequest
			if jerr := json.Unmarshal([]byte(trimmed), &req); jerr != nil {
				fmt.Fprintf(errOut, "Error parsing JSON: %v\n", jerr)
				enc.Encode(rpcResponse{
					JSONRPC: "2.0",
					Error:   &rpcError{Code: -32700, Message: "Parse error"},
				})
			} else if req.ID != nil {
				// requests without an id are notifications and get no reply
				enc.Encode(s.handleRequest(req))
			}
		}

		if err == io.EOF {
			return
		}
	}
}

func (s *MCPServer) handleRequest(req rpcRequest) rpcResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "ping":
		return rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{}}
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(req)
	default:
		return rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &rpcError{Code: -32601, Message: "Method not found"},
		}
	}
}

func (s *MCPServer) handleInitialize(req rpcRequest) rpcResponse {
	result := initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities:    map[string]any{"tools": map[string]any{}},
		ServerInfo:      serverInfo{Name: "subsbot-mcp", Version: "1.0.0"},
	}
	return rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}

var tools = []tool{
	{
		Name:        "subsbot_list_subscriptions",
		Description: "Получить список подписок с ценой, периодичностью, категорией и датой следующего платежа.",
		InputSchema: schema{
			Type: "object",
			Properties: map[string]field{
				"active_only": {Type: "boolean", Description: "Только активные подписки"},
			},
		},
	},
	{
		Name:        "subsbot_upcoming",
		Description: "Получить платежи в ближайшие дни (по умолчанию 14).",
		InputSchema: schema{
			Type: "object",
			Properties: map[string]field{
				"days": {Type: "string", Description: "Количество дней вперёд (число)"},
			},
		},
	},
	{
		Name:        "subsbot_totals",
		Description: "Получить суммарные расходы на активные подписки в месяц и в год.",
		InputSchema: noArgs,
	},
	{
		Name:        "subsbot_categories",
		Description: "Получить список категорий подписок.",
		InputSchema: noArgs,
	},
	{
		Name:        "subsbot_add_subscription",
		Description: "Добавить подписку. Периодичность: monthly, yearly, weekly.",
		InputSchema: schema{
			Type: "object",
			Properties: map[string]field{
				"name":           {Type: "string", Description: "Название подписки"},
				"price":          {Type: "string", Description: "Стоимость, например 399 или 1999.50"},
				"payment_day":    {Type: "string", Description: "День месяца для оплаты, 1-31"},
				"billing_period": {Type: "string", Description: "Периодичность", Enum: []string{"monthly", "yearly", "weekly"}},
				"category_id":    {Type: "string", Description: "ID категории (опционально)"},
			},
			Required: []string{"name", "price", "payment_day"},
		},
	},
	{
		Name:        "subsbot_toggle_subscription",
		Description: "Приостановить или возобновить подписку по её ID.",
		InputSchema: idArg,
	},
	{
		Name:        "subsbot_delete_subscription",
		Description: "Удалить подписку по её ID.",
		InputSchema: idArg,
	},
}

func (s *MCPServer) handleToolsList(req rpcRequest) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{"tools": tools}}
}

// argString renders a tool argument; JSON numbers arrive as float64
func argString(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (s *MCPServer) handleToolsCall(req rpcRequest) rpcResponse {
	var params callParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &rpcError{Code: -32602, Message: "Invalid params"},
		}
	}

	var result string
	var isError bool

	switch params.Name {
	case "subsbot_list_subscriptions":
		path := "/api/subscriptions"
		if v, ok := params.Arguments["active_only"].(bool); ok && v {
			path += "?active=true"
		}
		result, isError = s.apiGet(path)
	case "subsbot_upcoming":
		path := "/api/upcoming"
		if days := argString(params.Arguments, "days"); days != "" {
			path += "?days=" + url.QueryEscape(days)
		}
		result, isError = s.apiGet(path)
	case "subsbot_totals":
		result, isError = s.apiGet("/api/totals")
	case "subsbot_categories":
		result, isError = s.apiGet("/api/categories")
	case "subsbot_add_subscription":
		result, isError = s.addSubscription(params.Arguments)
	case "subsbot_toggle_subscription":
		id, err := subscriptionID(params.Arguments)
		if err != nil {
			result, isError = err.Error(), true
			break
		}
		result, isError = s.apiPost("/api/subscription/"+id+"/toggle", nil)
	case "subsbot_delete_subscription":
		id, err := subscriptionID(params.Arguments)
		if err != nil {
			result, isError = err.Error(), true
			break
		}
		result, isError = s.apiDelete("/api/subscription/" + id)
	default:
		result = "Unknown tool: " + params.Name
		isError = true
	}

	return rpcResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: callResult{
			Content: []textBlock{{Type: "text", Text: result}},
			IsError: isError,
		},
	}
}

func subscriptionID(args map[string]any) (string, error) {
	id := argString(args, "subscription_id")
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return "", fmt.Errorf("subscription_id must be a number, got %q", id)
	}
	return id, nil
}

func (s *MCPServer) addSubscription(args map[string]any) (string, bool) {
	day, err := strconv.Atoi(argString(args, "payment_day"))
	if err != nil {
		return "payment_day must be a number from 1 to 31", true
	}
	body := map[string]any{
		"name":           argString(args, "name"),
		"price":          argString(args, "price"),
		"payment_day":    day,
		"billing_period": argString(args, "billing_period"),
	}
	if c := argString(args, "category_id"); c != "" {
		id, err := strconv.ParseInt(c, 10, 64)
		if err != nil {
			return "category_id must be a number", true
		}
		body["category_id"] = id
	}
	return s.apiPost("/api/subscriptions", body)
}

func (s *MCPServer) apiGet(path string) (string, bool) {
	return s.apiRequest(http.MethodGet, path, nil)
}

func (s *MCPServer) apiPost(path string, body any) (string, bool) {
	return s.apiRequest(http.MethodPost, path, body)
}

func (s *MCPServer) apiDelete(path string) (string, bool) {
	return s.apiRequest(http.MethodDelete, path, nil)
}

func (s *MCPServer) apiRequest(method, path string, body any) (string, bool) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Sprintf("Error encoding request: %v", err), true
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, s.apiURL+path, reqBody)
	if err != nil {
		return fmt.Sprintf("Error creating request: %v", err), true
	}

	req.SetBasicAuth(s.apiUsername, s.apiPassword)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Sprintf("Error making request: %v", err), true
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("Error reading response: %v", err), true
	}

	var apiResp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}

	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return strings.TrimSpace(string(respBody)), resp.StatusCode >= 400
	}

	if !apiResp.Success {
		return fmt.Sprintf("API Error: %s", apiResp.Error), true
	}

	var prettyData bytes.Buffer
	if err := json.Indent(&prettyData, apiResp.Data, "", "  "); err != nil {
		return string(apiResp.Data), false
	}

	return prettyData.String(), false
}

func main() {
	_ = godotenv.Load()

	apiURL := os.Getenv("SUBSBOT_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	server := NewMCPServer(apiURL, os.Getenv("SUBSBOT_API_USERNAME"), os.Getenv("SUBSBOT_API_PASSWORD"))
	server.Run(os.Stdin, os.Stdout, os.Stderr)
}
