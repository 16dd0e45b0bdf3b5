package agent

import (
	"fmt"
	"strings"

	"localagent/internal/tools"
)

const agentIdentity = `## Identity
You are an AI assistant with autonomous agent capabilities running entirely on
this machine. You can read and write files, run shell commands, inspect git
repositories, search and fetch from the web, read PDFs, and call tools from
connected external servers. You work autonomously but dangerous actions
require user approval.`

const thinkingInstructions = `## Reasoning
Think before acting, but keep reasoning internal: your reply to the user must
never contain <thinking> tags. When uncertain, say so; never fabricate tool
results or file contents. The SYSTEM executes tools, not you — after emitting
a tool call, wait for the system message carrying the real result before
claiming success.`

const toolFormatInstructions = `## Tool Invocation
Two formats are understood. Prefer XML for multi-line or code-bearing
arguments:

<use_tool name="tool_name">
    <param name="param_name">value</param>
</use_tool>

For simple single-line calls, a JSON object works too:
{"tool": "tool_name", "params": {"key": "value"}}

Emit exactly one tool call per reply, or a final answer with no call.`

// toolExamples gives the model one concrete invocation per common tool.
var toolExamples = map[string]string{
	"web_search":   `{"tool": "web_search", "params": {"query": "latest Go release"}}`,
	"web_fetch":    `{"tool": "web_fetch", "params": {"url": "https://example.com/data"}}`,
	"file_read":    `{"tool": "file_read", "params": {"path": "src/main.go"}}`,
	"file_list":    `{"tool": "file_list", "params": {"path": "."}}`,
	"file_search":  `{"tool": "file_search", "params": {"query": "TODO", "path": "./src", "file_pattern": "go"}}`,
	"glob":         `{"tool": "glob", "params": {"pattern": "**/*.go"}}`,
	"file_delete":  `{"tool": "file_delete", "params": {"path": "temp.txt"}}`,
	"command":      `{"tool": "command", "params": {"command": "ls -la", "timeout_secs": 30}}`,
	"bash":         `{"tool": "bash", "params": {"command": "go build ./... 2>&1", "timeout_secs": 120}}`,
	"git_status":   `{"tool": "git_status", "params": {}}`,
	"git_diff":     `{"tool": "git_diff", "params": {"staged": false}}`,
	"git_log":      `{"tool": "git_log", "params": {"count": 10}}`,
	"pdf_read":     `{"tool": "pdf_read", "params": {"path": "paper.pdf"}}`,
	"think":        `{"tool": "think", "params": {"thought": "I should inspect the config first."}}`,
	"skill_invoke": `{"tool": "skill_invoke", "params": {"name": "my-skill"}}`,
	"file_write": `<use_tool name="file_write">
    <param name="path">output.txt</param>
    <param name="content">Line 1
Line 2</param>
</use_tool>`,
	"file_edit": `<use_tool name="file_edit">
    <param name="path">src/main.go</param>
    <param name="old_string">func oldName()</param>
    <param name="new_string">func newName()</param>
</use_tool>`,
}

// BuildSystemPrompt assembles the dynamic preamble: persona, capabilities,
// tool list with schemas, and the current run state.
func BuildSystemPrompt(persona string, infos []tools.Info, run *RunContext) string {
	var sb strings.Builder

	if p := strings.TrimSpace(persona); p != "" {
		sb.WriteString(p)
		sb.WriteString("\n\n")
	}
	sb.WriteString(agentIdentity)
	sb.WriteString("\n\n")
	sb.WriteString(thinkingInstructions)
	sb.WriteString("\n\n")

	if len(infos) > 0 {
		sb.WriteString(toolFormatInstructions)
		sb.WriteString("\n\n### Tool List\n\n")
		for _, info := range infos {
			fmt.Fprintf(&sb, "**%s**\n  %s\n", info.Name, info.Description)
			if props, ok := info.Schema["properties"].(map[string]any); ok && len(props) > 0 {
				sb.WriteString("  Parameters:\n")
				for name, raw := range props {
					schema, _ := raw.(map[string]any)
					typ, _ := schema["type"].(string)
					desc, _ := schema["description"].(string)
					fmt.Fprintf(&sb, "    - %s: %s - %s\n", name, typ, desc)
				}
			}
			if ex, ok := toolExamples[info.Name]; ok {
				fmt.Fprintf(&sb, "  Example: %s\n", ex)
			}
			sb.WriteString("\n")
		}
	}

	if run != nil {
		sb.WriteString(buildContextReminder(run))
	}
	return sb.String()
}

// buildContextReminder injects the run state: iteration, recent tools,
// warnings.
func buildContextReminder(run *RunContext) string {
	var sb strings.Builder
	sb.WriteString("## Context Reminder\n")
	fmt.Fprintf(&sb, "- Current iteration: %d\n", run.Iteration)

	if elapsed := run.Elapsed(); elapsed.Seconds() > 30 {
		fmt.Fprintf(&sb, "- Time elapsed: %ds (be mindful of time)\n", int(elapsed.Seconds()))
	}

	if n := len(run.ToolHistory); n > 0 {
		sb.WriteString("- Recently used tools:\n")
		start := n - 3
		if start < 0 {
			start = 0
		}
		for _, entry := range run.ToolHistory[start:] {
			status := "ok"
			if entry.IsError {
				status = "failed"
			}
			fmt.Fprintf(&sb, "  - %s (%s)\n", entry.Tool, status)
		}
	}

	if run.ConsecutiveErrors > 0 {
		fmt.Fprintf(&sb, "\nWARNING: %d consecutive error(s). Try a different approach.\n", run.ConsecutiveErrors)
	}
	if run.IsStuck() {
		sb.WriteString("\nWARNING: You seem to be repeating the same actions. Change your approach!\n")
	}
	return sb.String()
}

// formatReminder is appended after a malformed tool call.
const formatReminder = `Your last reply looked like a tool call but could not be parsed.
Use exactly one of these formats:
{"tool": "tool_name", "params": {"key": "value"}}
or
<use_tool name="tool_name"><param name="key">value</param></use_tool>
Retry with a well-formed call, or answer the user directly.`

// buildReflectionPrompt follows a tool execution.
func buildReflectionPrompt(tool, result string, success bool) string {
	if success {
		return fmt.Sprintf(`## Result from tool %q

%s

Decide the next step: if you have everything you need, write your complete
final answer in natural language using the concrete data above. If you need
more, emit exactly one further tool call.`, tool, result)
	}
	return fmt.Sprintf(`## Tool %q failed

Error: %s

Do not stop. Check the parameters, consider a different tool or a
reformulation, and act. If nothing works after another attempt, explain the
problem to the user and propose alternatives.`, tool, result)
}

// buildMissingToolPrompt lists what is actually available.
func buildMissingToolPrompt(requested string, available []string) string {
	return fmt.Sprintf(`The tool %q does not exist. Available tools: %s.
Pick one of them or answer the user directly.`, requested, strings.Join(available, ", "))
}

// deniedPrompt follows a permission denial or timeout.
const deniedPrompt = `The user did not approve that tool invocation. Do not retry it.
Try a different approach, or answer the user directly with what you know.`

// tooManyErrorsPrompt allows one final user-facing explanation.
const tooManyErrorsPrompt = `Too many consecutive tool failures. Stop using tools now and write a
plain-language answer for the user explaining what you tried and what went wrong.`

// compressionInstruction asks the model for a tier-2 summary.
const compressionInstruction = `The conversation context is nearly saturated. Produce a dense summary
(200-400 words) of the conversation below: user goals, actions taken,
important results. Omit resolved errors and verbose detail. Respond with
ONLY the summary.`

// buildTitlePrompt asks for a short conversation title.
func buildTitlePrompt(firstUser, firstAssistant string) string {
	return fmt.Sprintf(
		"Generate a short title (max 60 chars) for this conversation.\n\nUser: %s\nAssistant: %s\n\nTitle:",
		truncateRunes(firstUser, 200),
		truncateRunes(firstAssistant, 300),
	)
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
