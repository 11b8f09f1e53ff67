// Package testjsonl provides shared NDJSON fixture builders for
// chat-log and rollout session test data. Used by the parser and
// pipeline test packages.
package testjsonl

import (
	"encoding/json"
	"strings"
)

// ChatUserJSON returns a chat-log user message as a JSON line.
func ChatUserJSON(content, timestamp string, cwd ...string) string {
	m := map[string]any{
		"type":      "user",
		"timestamp": timestamp,
		"message": map[string]any{
			"role":    "user",
			"content": content,
		},
	}
	if len(cwd) > 0 {
		m["cwd"] = cwd[0]
	}
	return mustMarshal(m)
}

// ChatUserWithSessionIDJSON returns a chat-log user message carrying
// a sessionId field.
func ChatUserWithSessionIDJSON(
	content, timestamp, sessionID string, cwd ...string,
) string {
	m := map[string]any{
		"type":      "user",
		"timestamp": timestamp,
		"sessionId": sessionID,
		"message": map[string]any{
			"role":    "user",
			"content": content,
		},
	}
	if len(cwd) > 0 {
		m["cwd"] = cwd[0]
	}
	return mustMarshal(m)
}

// ChatMetaUserJSON returns a chat-log user message with optional
// isMeta and isCompactSummary envelope flags.
func ChatMetaUserJSON(content, timestamp string, meta, compact bool) string {
	m := map[string]any{
		"type":      "user",
		"timestamp": timestamp,
		"message": map[string]any{
			"role":    "user",
			"content": content,
		},
	}
	if meta {
		m["isMeta"] = true
	}
	if compact {
		m["isCompactSummary"] = true
	}
	return mustMarshal(m)
}

// ChatAssistantJSON returns a chat-log assistant message. Content
// may be a plain string or a slice of block maps.
func ChatAssistantJSON(content any, timestamp string) string {
	return mustMarshal(map[string]any{
		"type":      "assistant",
		"timestamp": timestamp,
		"message": map[string]any{
			"role":    "assistant",
			"content": content,
		},
	})
}

// ToolUseBlock returns a tool_use content block.
func ToolUseBlock(id, name string, input map[string]any) map[string]any {
	return map[string]any{
		"type":  "tool_use",
		"id":    id,
		"name":  name,
		"input": input,
	}
}

// ToolResultBlock returns a tool_result content block.
func ToolResultBlock(toolUseID, text string) map[string]any {
	return map[string]any{
		"type":        "tool_result",
		"tool_use_id": toolUseID,
		"content":     text,
	}
}

// TextBlock returns a text content block.
func TextBlock(text string) map[string]any {
	return map[string]any{"type": "text", "text": text}
}

// RolloutManifestJSON returns a rollout manifest.json body.
func RolloutManifestJSON(startedAt, endedAt, cwd string) string {
	m := map[string]any{
		"started_at": startedAt,
		"ended_at":   endedAt,
	}
	if cwd != "" {
		m["cwd"] = cwd
	}
	return mustMarshal(m)
}

// RolloutMessageJSON returns a rollout message event line.
func RolloutMessageJSON(role, text, ts string) string {
	return mustMarshal(map[string]any{
		"type": "message",
		"ts":   ts,
		"role": role,
		"text": text,
	})
}

// RolloutToolCallJSON returns a rollout tool_call event line.
func RolloutToolCallJSON(id, name, ts string, input map[string]any) string {
	return mustMarshal(map[string]any{
		"type":  "tool_call",
		"ts":    ts,
		"id":    id,
		"name":  name,
		"input": input,
	})
}

// RolloutToolResultJSON returns a rollout tool_result event line.
func RolloutToolResultJSON(id, output, ts string) string {
	return mustMarshal(map[string]any{
		"type":   "tool_result",
		"ts":     ts,
		"id":     id,
		"output": output,
	})
}

// SignalEventJSON returns a multi-agent events.log signal line.
func SignalEventJSON(agentID, role, signal, message, timestamp string) string {
	return mustMarshal(map[string]any{
		"type":      "signal",
		"timestamp": timestamp,
		"agent_id":  agentID,
		"role":      role,
		"signal":    signal,
		"message":   message,
	})
}

// Lines joins JSON lines into NDJSON file content.
func Lines(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func mustMarshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
