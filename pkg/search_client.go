package pkg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gesukichi/DeepAMARIS/chat"
)

const searchToolName = "search_internal_documents"

// SearchClient talks to the search-augmentation service. It resolves
// the tool calls an assistant turn requested into tool messages whose
// tool_call_id pairs with the originating call, preserving order, so
// the sanitizer admits them downstream.
type SearchClient struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

func NewSearchClient(endpoint, apiKey string) *SearchClient {
	return &SearchClient{
		client:   &http.Client{},
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
	}
}

// Tools returns the tool definitions advertised to the completion
// engine when search augmentation is enabled.
func (s *SearchClient) Tools() []ToolDefinition {
	return []ToolDefinition{{
		Type: "function",
		Function: ToolFunction{
			Name:        searchToolName,
			Description: "Search internal documents and the web for information relevant to the user question.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "The search query"}
				},
				"required": ["query"]
			}`),
		},
	}}
}

type toolExecuteRequest struct {
	CallID    string          `json:"call_id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type toolExecuteResponse struct {
	Content   string          `json:"content"`
	Citations json.RawMessage `json:"citations,omitempty"`
}

// ResolveToolCalls executes each tool call against the search service
// and returns the paired tool messages in call order. A failed call
// produces an error-content tool message rather than dropping the pair;
// an unanswered call id would otherwise poison the conversation for the
// completion engine.
func (s *SearchClient) ResolveToolCalls(ctx context.Context, calls []chat.ToolCall) ([]chat.Message, error) {
	out := make([]chat.Message, 0, len(calls))
	for _, call := range calls {
		msg := chat.Message{Role: chat.RoleTool, ToolCallID: call.ID}

		if call.Function.Name != searchToolName {
			log.Warn().Str("tool", call.Function.Name).Str("call_id", call.ID).
				Msg("unknown tool requested by completion engine")
			msg.Content = fmt.Sprintf(`{"error": "unknown tool function: %s"}`, call.Function.Name)
			out = append(out, msg)
			continue
		}

		result, err := s.execute(ctx, call)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Error().Err(err).Str("call_id", call.ID).Msg("search tool call failed")
			msg.Content = `{"error": "search service unavailable"}`
			out = append(out, msg)
			continue
		}

		msg.Content = result.Content
		if len(result.Citations) > 0 {
			ctxPayload, err := json.Marshal(map[string]json.RawMessage{"citations": result.Citations})
			if err == nil {
				msg.Context = string(ctxPayload)
			}
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *SearchClient) execute(ctx context.Context, call chat.ToolCall) (*toolExecuteResponse, error) {
	args := call.Function.Arguments
	if args == "" {
		args = "{}"
	}
	reqBody := toolExecuteRequest{
		CallID:    call.ID,
		Name:      call.Function.Name,
		Arguments: json.RawMessage(args),
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.endpoint+"/tools/execute", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.apiKey))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call search service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("search service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result toolExecuteResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode tool response: %w", err)
	}
	return &result, nil
}
