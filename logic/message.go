package logic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gesukichi/DeepAMARIS/chat"
	"github.com/gesukichi/DeepAMARIS/config"
	"github.com/gesukichi/DeepAMARIS/dao"
	"github.com/gesukichi/DeepAMARIS/models"
	"github.com/gesukichi/DeepAMARIS/pkg"
)

const titlePrompt = "Summarize the conversation so far in a short title of 4 words or less. Respond with the title only, no quotes or punctuation."

// StreamFunc receives partial assistant content as it arrives.
type StreamFunc func(delta string)

// MessageLogic runs the conversation continuation flow: load history,
// append the user turn, sanitize, complete, resolve tool calls, persist
// the full exchange and filter the client-facing payload.
type MessageLogic struct {
	users      UserStore
	convos     ConversationStore
	messages   MessageStore
	completion CompletionClient
	search     ToolResolver
	cfg        config.ChatConfig
}

func NewMessageLogic(
	users UserStore,
	convos ConversationStore,
	messages MessageStore,
	completion CompletionClient,
	search ToolResolver,
	cfg config.ChatConfig,
) *MessageLogic {
	return &MessageLogic{
		users:      users,
		convos:     convos,
		messages:   messages,
		completion: completion,
		search:     search,
		cfg:        cfg,
	}
}

// Chat runs a stateless turn: no history load, nothing persisted.
func (l *MessageLogic) Chat(ctx context.Context, incoming []chat.Message, stream StreamFunc) (*ChatResponse, error) {
	turns, err := l.acceptIncoming(incoming)
	if err != nil {
		return nil, err
	}

	produced, finish, meta, err := l.completeTurn(ctx, turns, stream)
	if err != nil {
		return nil, err
	}

	return l.buildResponse(produced, finish, meta, nil, nil), nil
}

// ContinueConversation runs a persisted turn. A nil or unknown
// conversation id starts a new conversation instead of failing. The
// full unsanitized turn set is persisted; a persistence failure after a
// successful completion is downgraded to a warning so the answer is
// never withheld.
func (l *MessageLogic) ContinueConversation(
	ctx context.Context,
	userID string,
	conversationID *uuid.UUID,
	incoming []chat.Message,
	stream StreamFunc,
) (*ChatResponse, error) {
	turns, err := l.acceptIncoming(incoming)
	if err != nil {
		return nil, err
	}

	if _, err := l.users.GetOrCreate(userID); err != nil {
		return nil, err
	}

	convo, history, err := l.loadOrCreate(ctx, userID, conversationID, turns)
	if err != nil {
		return nil, err
	}

	produced, finish, meta, err := l.completeTurn(ctx, append(history, turns...), stream)
	if err != nil {
		return nil, err
	}

	var warnings []string
	if err := l.messages.Append(convo.ID, append(turns, produced...)); err != nil {
		log.Error().Err(err).Str("conversation_id", convo.ID.String()).
			Msg("failed to persist conversation turn")
		warnings = append(warnings, WarningHistoryPersistFailed)
	} else if err := l.convos.Touch(convo.ID); err != nil {
		log.Warn().Err(err).Str("conversation_id", convo.ID.String()).
			Msg("failed to bump conversation timestamp")
	}

	histMeta := &HistoryMetadata{
		ConversationID: convo.ID.String(),
		Title:          convo.Title,
		Date:           convo.CreatedAt,
	}
	return l.buildResponse(produced, finish, meta, histMeta, warnings), nil
}

// acceptIncoming validates a client payload before the flow starts.
// Tool-role entries are stripped unconditionally: clients never
// originate tool messages. Remaining messages must be well formed.
func (l *MessageLogic) acceptIncoming(incoming []chat.Message) ([]chat.Message, error) {
	turns := chat.FilterForClient(incoming)
	if len(turns) == 0 {
		return nil, fmt.Errorf("%w: messages are required", ErrInvalidRequest)
	}
	for i := range turns {
		if err := turns[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	if chat.LastUserText(turns) == "" {
		return nil, fmt.Errorf("%w: a user message is required", ErrInvalidRequest)
	}
	return turns, nil
}

func (l *MessageLogic) loadOrCreate(
	ctx context.Context,
	userID string,
	conversationID *uuid.UUID,
	turns []chat.Message,
) (*models.Conversation, []chat.Message, error) {
	if conversationID != nil {
		convo, err := l.convos.GetByID(*conversationID)
		switch {
		case err == nil:
			if convo.UserID != userID {
				return nil, nil, dao.ErrNotFound
			}
			history, err := l.messages.ListByConversation(convo.ID)
			if err != nil && !errors.Is(err, dao.ErrNotFound) {
				return nil, nil, err
			}
			return convo, history, nil
		case errors.Is(err, dao.ErrNotFound):
			// Unknown id means a new conversation, not a failure.
		default:
			return nil, nil, err
		}
	}

	title := l.generateTitle(ctx, chat.LastUserText(turns))
	convo, err := l.convos.Create(userID, title)
	if err != nil {
		return nil, nil, err
	}
	return convo, nil, nil
}

// generateTitle asks the completion engine for a short title and falls
// back to a truncated user question when that fails.
func (l *MessageLogic) generateTitle(ctx context.Context, userText string) string {
	fallback := userText
	if len(fallback) > 64 {
		fallback = fallback[:64]
	}

	wire, err := pkg.FromChatMessages([]chat.Message{
		{Role: chat.RoleSystem, Content: titlePrompt},
		{Role: chat.RoleUser, Content: userText},
	})
	if err != nil {
		return fallback
	}
	req := pkg.ChatCompletionRequest{
		Model:     l.cfg.Model,
		Messages:  wire,
		MaxTokens: 16,
	}
	resp, err := l.completion.CreateChatCompletion(ctx, req)
	if err != nil || len(resp.Choices) == 0 {
		log.Warn().Err(err).Msg("title generation failed, using fallback")
		return fallback
	}
	title := strings.TrimSpace(resp.Choices[0].Message.Content)
	if title == "" {
		return fallback
	}
	return title
}

// completeTurn runs the completion loop. When the engine requests tool
// calls and a resolver is configured, the calls are resolved and the
// loop continues with the tool results appended, up to MaxToolDepth
// rounds. Every outbound request is built by buildRequest, which
// sanitizes as its final step.
func (l *MessageLogic) completeTurn(
	ctx context.Context,
	msgs []chat.Message,
	stream StreamFunc,
) ([]chat.Message, string, *completionMeta, error) {
	var produced []chat.Message
	var finish string
	meta := &completionMeta{}

	for depth := 0; ; depth++ {
		req, err := l.buildRequest(append(msgs, produced...), stream != nil)
		if err != nil {
			return nil, "", nil, err
		}

		var assistant chat.Message
		if stream != nil {
			assistant, finish, err = l.streamOnce(ctx, req, stream, meta)
		} else {
			assistant, finish, err = l.completeOnce(ctx, req, meta)
		}
		if err != nil {
			if errors.Is(err, pkg.ErrUpstreamInvalid) {
				l.logRejectedRequest(req, err)
			}
			return nil, "", nil, err
		}

		assistant.ID = uuid.New().String()
		produced = append(produced, assistant)

		if len(assistant.ToolCalls) == 0 || l.search == nil {
			return produced, finish, meta, nil
		}
		if depth >= l.cfg.MaxToolDepth {
			log.Warn().Int("depth", depth).Msg("tool resolution depth exceeded, returning unresolved calls")
			return produced, finish, meta, nil
		}

		toolMsgs, err := l.search.ResolveToolCalls(ctx, assistant.ToolCalls)
		if err != nil {
			return nil, "", nil, err
		}
		produced = append(produced, toolMsgs...)
	}
}

// buildRequest assembles the outbound completion request. Sanitization
// is the last transformation before wire conversion; the default system
// message is injected afterwards because it takes no part in tool-call
// pairing.
func (l *MessageLogic) buildRequest(msgs []chat.Message, streaming bool) (pkg.ChatCompletionRequest, error) {
	sanitized := chat.SanitizeForCompletion(msgs)
	if !chat.HasSystemMessage(sanitized) {
		sanitized = append([]chat.Message{{Role: chat.RoleSystem, Content: l.cfg.SystemMessage}}, sanitized...)
	}

	wire, err := pkg.FromChatMessages(sanitized)
	if err != nil {
		return pkg.ChatCompletionRequest{}, err
	}

	temperature := l.cfg.Temperature
	topP := l.cfg.TopP
	req := pkg.ChatCompletionRequest{
		Model:       l.cfg.Model,
		Messages:    wire,
		MaxTokens:   l.cfg.MaxTokens,
		Temperature: &temperature,
	}
	if topP > 0 {
		req.TopP = &topP
	}
	if l.search != nil {
		req.Tools = l.search.Tools()
	}
	if streaming {
		req.StreamOptions = &pkg.StreamOptions{IncludeUsage: true}
	}
	return req, nil
}

type completionMeta struct {
	ID      string
	Object  string
	Created uint64
	Model   string
	Usage   *pkg.Usage
}

func (m *completionMeta) capture(id, object string, created uint64, model string, usage *pkg.Usage) {
	if id != "" {
		m.ID = id
	}
	if object != "" {
		m.Object = object
	}
	if created != 0 {
		m.Created = created
	}
	if model != "" {
		m.Model = model
	}
	if usage != nil {
		m.Usage = usage
	}
}

func (l *MessageLogic) completeOnce(ctx context.Context, req pkg.ChatCompletionRequest, meta *completionMeta) (chat.Message, string, error) {
	resp, err := l.completion.CreateChatCompletion(ctx, req)
	if err != nil {
		return chat.Message{}, "", err
	}
	meta.capture(resp.ID, resp.Object, resp.Created, resp.Model, resp.Usage)

	if len(resp.Choices) == 0 {
		return chat.Message{}, "", fmt.Errorf("%w: response carried no choices", pkg.ErrUpstreamUnavailable)
	}
	choice := resp.Choices[0]
	assistant := chat.Message{
		Role:      chat.RoleAssistant,
		Content:   choice.Message.Content,
		ToolCalls: choice.Message.ToolCalls,
	}
	return assistant, choice.FinishReason, nil
}

// streamOnce consumes one streamed completion, forwarding content
// deltas and accumulating the final assistant message. Tool-call
// argument fragments are merged by delta index.
func (l *MessageLogic) streamOnce(ctx context.Context, req pkg.ChatCompletionRequest, stream StreamFunc, meta *completionMeta) (chat.Message, string, error) {
	var content strings.Builder
	var finish string
	calls := map[int]*chat.ToolCall{}

	err := l.completion.CreateChatCompletionStream(ctx, req, func(resp *pkg.StreamChatCompletionResponse) error {
		meta.capture(resp.ID, resp.Object, resp.Created, resp.Model, resp.Usage)
		for _, choice := range resp.Choices {
			if choice.Delta.Content != "" {
				content.WriteString(choice.Delta.Content)
				stream(choice.Delta.Content)
			}
			for _, tc := range choice.Delta.ToolCalls {
				acc, ok := calls[tc.Index]
				if !ok {
					acc = &chat.ToolCall{}
					calls[tc.Index] = acc
				}
				if tc.ID != "" {
					acc.ID = tc.ID
				}
				if tc.Type != "" {
					acc.Type = tc.Type
				}
				if tc.Function.Name != "" {
					acc.Function.Name = tc.Function.Name
				}
				acc.Function.Arguments += tc.Function.Arguments
			}
			if choice.FinishReason != "" {
				finish = choice.FinishReason
			}
		}
		return nil
	})
	if err != nil {
		return chat.Message{}, "", err
	}

	assistant := chat.Message{Role: chat.RoleAssistant, Content: content.String()}
	if len(calls) > 0 {
		indexes := make([]int, 0, len(calls))
		for i := range calls {
			indexes = append(indexes, i)
		}
		sort.Ints(indexes)
		for _, i := range indexes {
			assistant.ToolCalls = append(assistant.ToolCalls, *calls[i])
		}
	}
	return assistant, finish, nil
}

// logRejectedRequest records the shape of a request the engine refused.
// A structural rejection here means the sanitizer let something through
// and is a defect, not a transient fault.
func (l *MessageLogic) logRejectedRequest(req pkg.ChatCompletionRequest, err error) {
	shape := make([]string, len(req.Messages))
	for i, m := range req.Messages {
		entry := fmt.Sprintf("%d:%s", i, m.Role)
		if m.ToolCallID != "" {
			entry += "(tool_call_id=" + m.ToolCallID + ")"
		}
		if len(m.ToolCalls) > 0 {
			entry += fmt.Sprintf("(%d tool_calls)", len(m.ToolCalls))
		}
		shape[i] = entry
	}
	log.Error().Err(err).Strs("request_shape", shape).
		Msg("completion engine rejected request after sanitization")
}

func (l *MessageLogic) buildResponse(
	produced []chat.Message,
	finish string,
	meta *completionMeta,
	histMeta *HistoryMetadata,
	warnings []string,
) *ChatResponse {
	resp := &ChatResponse{
		ID:              meta.ID,
		Object:          meta.Object,
		Created:         int64(meta.Created),
		Model:           meta.Model,
		HistoryMetadata: histMeta,
		Warnings:        warnings,
		Choices: []ChatChoice{{
			Messages:     chat.FilterForClient(produced),
			FinishReason: finish,
		}},
	}
	if resp.ID == "" {
		resp.ID = uuid.New().String()
	}
	if resp.Object == "" {
		resp.Object = "chat.completion"
	}
	if resp.Created == 0 {
		resp.Created = time.Now().Unix()
	}
	if resp.Model == "" {
		resp.Model = l.cfg.Model
	}
	return resp
}
