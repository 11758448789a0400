package pkg

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gesukichi/DeepAMARIS/chat"
)

// Upstream error taxonomy. A structural rejection means the request we
// built was invalid, which indicates a sanitizer defect on our side; it
// is never retried. Unavailability is transient and retryable by the
// caller.
var (
	ErrUpstreamInvalid     = errors.New("completion engine rejected request")
	ErrUpstreamUnavailable = errors.New("completion engine unavailable")
)

// RequestMessage is the wire form of a message sent to the completion
// engine. Citation context, feedback and ids are deliberately absent:
// they never cross this boundary.
type RequestMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []chat.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// FromChatMessages converts sanitized domain messages into wire form.
func FromChatMessages(msgs []chat.Message) ([]RequestMessage, error) {
	out := make([]RequestMessage, 0, len(msgs))
	for _, m := range msgs {
		rm := RequestMessage{
			Role:       m.Role,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
		}
		var content any
		switch {
		case len(m.Parts) > 0:
			content = m.Parts
		case m.Content != "":
			content = m.Content
		}
		if content != nil {
			raw, err := json.Marshal(content)
			if err != nil {
				return nil, fmt.Errorf("failed to encode message content: %w", err)
			}
			rm.Content = raw
		}
		out = append(out, rm)
	}
	return out, nil
}

// ToolFunction describes a callable function advertised to the engine.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolDefinition is one tool entry in a completion request.
type ToolDefinition struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type ChatCompletionRequest struct {
	Model         string           `json:"model"`
	Messages      []RequestMessage `json:"messages"`
	MaxTokens     uint32           `json:"max_tokens,omitempty"`
	Temperature   *float32         `json:"temperature,omitempty"`
	TopP          *float32         `json:"top_p,omitempty"`
	N             *uint32          `json:"n,omitempty"`
	Stream        *bool            `json:"stream,omitempty"`
	StreamOptions *StreamOptions   `json:"stream_options,omitempty"`
	Stop          []string         `json:"stop,omitempty"`
	Seed          *uint32          `json:"seed,omitempty"`
	Tools         []ToolDefinition `json:"tools,omitempty"`
	User          *string          `json:"user,omitempty"`
}

type ResponseMessage struct {
	Role      string          `json:"role"`
	Content   string          `json:"content,omitempty"`
	ToolCalls []chat.ToolCall `json:"tool_calls,omitempty"`
}

type ChatChoice struct {
	Index        uint32          `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     uint32 `json:"prompt_tokens"`
	CompletionTokens uint32 `json:"completion_tokens"`
	TotalTokens      uint32 `json:"total_tokens"`
}

type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created uint64       `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *Usage       `json:"usage,omitempty"`
}

// StreamToolCall is a partial tool invocation carried by stream deltas.
// Argument fragments arrive across chunks and are merged by index.
type StreamToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type StreamDelta struct {
	Role      string           `json:"role,omitempty"`
	Content   string           `json:"content,omitempty"`
	ToolCalls []StreamToolCall `json:"tool_calls,omitempty"`
}

type StreamChatChoice struct {
	Index        uint32      `json:"index"`
	Delta        StreamDelta `json:"delta"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

type StreamChatCompletionResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created uint64             `json:"created"`
	Model   string             `json:"model"`
	Choices []StreamChatChoice `json:"choices"`
	Usage   *Usage             `json:"usage,omitempty"`
}

type ChatClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

func NewChatClient(baseURL, apiKey string) *ChatClient {
	return &ChatClient{
		client:  &http.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

func (c *ChatClient) post(ctx context.Context, endpoint string, body interface{}) (*http.Response, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, endpoint)

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, classifyStatus(resp.StatusCode, bodyBytes)
	}

	return resp, nil
}

func classifyStatus(status int, body []byte) error {
	detail := strings.TrimSpace(string(body))
	if status == http.StatusTooManyRequests || status >= 500 {
		return fmt.Errorf("%w: status %d: %s", ErrUpstreamUnavailable, status, detail)
	}
	return fmt.Errorf("%w: status %d: %s", ErrUpstreamInvalid, status, detail)
}

// CreateChatCompletion handles non-streaming responses
func (c *ChatClient) CreateChatCompletion(ctx context.Context, request ChatCompletionRequest) (*ChatCompletionResponse, error) {
	resp, err := c.post(ctx, "chat/completions", request)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUpstreamUnavailable, err)
	}

	var response ChatCompletionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &response, nil
}

// CreateChatCompletionStream handles streaming responses. Consumption is
// single-pass and forward-only; the response body is released on every
// exit path, including handler errors and context cancellation.
func (c *ChatClient) CreateChatCompletionStream(ctx context.Context, request ChatCompletionRequest, handler func(*StreamChatCompletionResponse) error) error {
	streamTrue := true
	request.Stream = &streamTrue

	resp, err := c.post(ctx, "chat/completions", request)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Text()
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}
		if line == "data: [DONE]" {
			break
		}

		var response StreamChatCompletionResponse
		if err := json.Unmarshal([]byte(line[6:]), &response); err != nil {
			return fmt.Errorf("failed to unmarshal stream chunk: %w", err)
		}

		if err := handler(&response); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: reading stream: %v", ErrUpstreamUnavailable, err)
	}

	return nil
}
