package parser

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/distillpress/distill/internal/model"
)

// rawToolCall pairs a tool invocation with the dialect's correlation
// id so a later tool_result can be matched back to it.
type rawToolCall struct {
	ID   string
	Call model.ToolCall
}

// rawToolResult is the truncated text of one tool result block.
type rawToolResult struct {
	ID     string
	Output string
}

// extractMessageContent pulls readable text, tool calls, and tool
// results out of a message content value. Content is either a plain
// string or an array of typed blocks (text, thinking, tool_use,
// tool_result); thinking blocks are dropped.
func extractMessageContent(
	content gjson.Result,
) (string, []rawToolCall, []rawToolResult) {
	if content.Type == gjson.String {
		return content.Str, nil, nil
	}
	if !content.IsArray() {
		return "", nil, nil
	}

	var (
		parts   []string
		calls   []rawToolCall
		results []rawToolResult
	)
	content.ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").Str {
		case "text":
			if text := block.Get("text").Str; text != "" {
				parts = append(parts, text)
			}
		case "tool_use":
			name := block.Get("name").Str
			if name == "" {
				break
			}
			calls = append(calls, rawToolCall{
				ID: block.Get("id").Str,
				Call: model.ToolCall{
					Name:    name,
					Path:    toolInputPath(block.Get("input")),
					Command: toolInputCommand(block.Get("input")),
				},
			})
		case "tool_result":
			results = append(results, rawToolResult{
				ID:     block.Get("tool_use_id").Str,
				Output: truncate(toolResultText(block.Get("content")), toolOutputMaxLen),
			})
		}
		return true
	})

	return strings.Join(parts, "\n"), calls, results
}

// toolInputPath extracts the target file path from a tool input,
// trying the key variants the dialects use.
func toolInputPath(input gjson.Result) string {
	for _, key := range []string{"file_path", "path", "notebook_path"} {
		if v := input.Get(key).Str; v != "" {
			return v
		}
	}
	return ""
}

// toolInputCommand extracts the shell command from a tool input.
func toolInputCommand(input gjson.Result) string {
	for _, key := range []string{"command", "cmd"} {
		if v := input.Get(key).Str; v != "" {
			return v
		}
	}
	return ""
}

// toolResultText flattens a tool_result content value to text.
func toolResultText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.Str
	}
	if content.IsArray() {
		var parts []string
		content.ForEach(func(_, block gjson.Result) bool {
			if text := block.Get("text").Str; text != "" {
				parts = append(parts, text)
			}
			return true
		})
		return strings.Join(parts, "\n")
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// isQuestion reports whether a user message reads as a question.
func isQuestion(text string) bool {
	trimmed := strings.TrimSpace(text)
	return strings.HasSuffix(trimmed, "?")
}
