package stores

import (
	"fmt"
	"log"

	"github.com/Desarso/opsagent/models"
)

// SanitizeHistory makes a reloaded thread transcript acceptable to providers
// that validate tool cycles.
//
// Valid turn patterns:
// - user -> assistant
// - user -> assistant(tool calls) -> tool results (one per call id) -> assistant
//
// The function ensures:
// - History starts with a user, system or plain assistant message
// - Every tool call is answered by a tool message carrying its call id
// - No tool message survives without the call it answers
func SanitizeHistory(msgs []models.Message) []models.Message {
	if len(msgs) == 0 {
		return msgs
	}

	startIdx := findValidStartIndex(msgs)
	if startIdx == -1 {
		// Preserve at least the latest user turn for context.
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role == models.RoleUser {
				log.Printf("[HISTORY_SANITIZER] No valid start, but found user message at index %d, using as fallback", i)
				return []models.Message{msgs[i]}
			}
		}
		log.Printf("[HISTORY_SANITIZER] No valid starting point found, returning empty history")
		return []models.Message{}
	}

	if startIdx > 0 {
		log.Printf("[HISTORY_SANITIZER] Skipping first %d messages to find valid start (was role: %s)", startIdx, msgs[0].Role)
		msgs = msgs[startIdx:]
	}

	sanitized := sanitizeToolCycles(msgs)
	if len(sanitized) != len(msgs) {
		log.Printf("[HISTORY_SANITIZER] Removed %d messages with broken tool cycles", len(msgs)-len(sanitized))
	}
	return sanitized
}

// findValidStartIndex skips tool results and tool-calling assistant turns at
// the head of a truncated window.
func findValidStartIndex(msgs []models.Message) int {
	for i, msg := range msgs {
		switch {
		case msg.Role == models.RoleTool:
			continue
		case msg.Role == models.RoleAssistant && msg.HasToolCalls():
			continue
		default:
			return i
		}
	}
	return -1
}

// sanitizeToolCycles walks the transcript and repairs every tool cycle.
func sanitizeToolCycles(msgs []models.Message) []models.Message {
	result := make([]models.Message, 0, len(msgs))
	i := 0

	for i < len(msgs) {
		msg := msgs[i]

		switch {
		case msg.Role == models.RoleAssistant && msg.HasToolCalls():
			cycle, next := collectCompleteCycle(msgs, i)
			result = append(result, cycle...)
			i = next

		case msg.Role == models.RoleTool:
			log.Printf("[HISTORY_SANITIZER] Removing orphaned tool result %q at index %d", msg.ToolCallID, i)
			i++

		default:
			result = append(result, msg)
			i++
		}
	}

	return result
}

// collectCompleteCycle takes the assistant turn at startIdx and the tool
// messages that follow it. Calls without a result are dropped from the
// assistant turn and results for unknown calls are discarded. If no call
// survives, only the assistant text (if any) is kept.
func collectCompleteCycle(msgs []models.Message, startIdx int) ([]models.Message, int) {
	call := msgs[startIdx]
	i := startIdx + 1

	results := map[string]models.Message{}
	for i < len(msgs) && msgs[i].Role == models.RoleTool {
		if _, dup := results[msgs[i].ToolCallID]; !dup {
			results[msgs[i].ToolCallID] = msgs[i]
		}
		i++
	}

	kept := make([]models.FunctionCall, 0, len(call.ToolCalls))
	answers := make([]models.Message, 0, len(call.ToolCalls))
	for _, fc := range call.ToolCalls {
		res, ok := results[fc.ID]
		if !ok {
			log.Printf("[HISTORY_SANITIZER] Dropping tool call %q (%s) without result at index %d", fc.ID, fc.Name, startIdx)
			continue
		}
		kept = append(kept, fc)
		answers = append(answers, res)
	}

	if len(kept) == 0 {
		if call.Content == "" {
			return nil, i
		}
		return []models.Message{models.NewAssistantMessage(call.Content, nil)}, i
	}

	call.ToolCalls = kept
	return append([]models.Message{call}, answers...), i
}

// DetectCorruptedHistory checks if the history has any issues that would cause API errors.
// Returns a list of issues found (empty if history is clean).
func DetectCorruptedHistory(msgs []models.Message) []string {
	issues := []string{}
	if len(msgs) == 0 {
		return issues
	}

	if msgs[0].Role == models.RoleTool {
		issues = append(issues, "History starts with tool result (orphaned)")
	}
	if msgs[0].Role == models.RoleAssistant && msgs[0].HasToolCalls() {
		issues = append(issues, "History starts with tool call (truncated mid-cycle)")
	}

	pending := map[string]bool{}
	for i, msg := range msgs {
		switch {
		case msg.Role == models.RoleAssistant && msg.HasToolCalls():
			for id := range pending {
				issues = append(issues, fmt.Sprintf("Tool call %q has no result", id))
			}
			pending = map[string]bool{}
			for _, fc := range msg.ToolCalls {
				pending[fc.ID] = true
			}
		case msg.Role == models.RoleTool:
			if !pending[msg.ToolCallID] {
				issues = append(issues, fmt.Sprintf("Tool result %q at index %d without matching call", msg.ToolCallID, i))
				continue
			}
			delete(pending, msg.ToolCallID)
		case msg.Role == models.RoleUser && i > 0 && msgs[i-1].Role == models.RoleUser:
			issues = append(issues, "Two consecutive user messages")
		}
	}
	for id := range pending {
		issues = append(issues, fmt.Sprintf("Tool call %q has no result", id))
	}

	return issues
}
