package chat

// SanitizeForCompletion returns the maximal subsequence of msgs that is
// safe to submit to the completion engine. The engine requires every
// tool message to answer a tool_call declared by the nearest preceding
// assistant message; anything violating that is filtered out here.
//
// Single forward pass. The pending set of answerable call ids is
// replaced, not accumulated, whenever a new assistant message is seen:
// calls from an older assistant turn stop being answerable once a newer
// assistant turn exists. Each call id is consumable by at most one tool
// message. Unknown or malformed entries (legacy or partially written
// store rows) are dropped, never raised.
//
// This must be the last transformation applied before any outbound
// completion call, on every send path.
func SanitizeForCompletion(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	pending := map[string]struct{}{}
	for _, m := range msgs {
		switch m.Role {
		case RoleAssistant:
			if m.Validate() != nil {
				// Dropped assistant turns cannot be answered either.
				pending = map[string]struct{}{}
				continue
			}
			pending = make(map[string]struct{}, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				pending[tc.ID] = struct{}{}
			}
			out = append(out, m)
		case RoleTool:
			if m.Validate() != nil {
				continue
			}
			if _, ok := pending[m.ToolCallID]; !ok {
				continue
			}
			delete(pending, m.ToolCallID)
			out = append(out, m)
		case RoleSystem, RoleUser, RoleFunction:
			if m.Validate() != nil {
				continue
			}
			out = append(out, m)
		default:
			// unknown role
		}
	}
	return out
}

// FilterForClient strips every tool-role message from a payload crossing
// the client boundary, in either direction. Tool messages are a storage
// and completion-engine concept; they never round-trip through the UI.
func FilterForClient(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleTool {
			continue
		}
		out = append(out, m)
	}
	return out
}

// HasSystemMessage reports whether any message in the sequence carries
// the system role.
func HasSystemMessage(msgs []Message) bool {
	for _, m := range msgs {
		if m.Role == RoleSystem {
			return true
		}
	}
	return false
}

// LastUserText returns the text of the most recent user message, or ""
// if the sequence contains none.
func LastUserText(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i].Text()
		}
	}
	return ""
}
