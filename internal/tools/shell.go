package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const maxCommandOutput = 64 * 1024

// safeCommands is the allowlist for the "command" tool. Anything outside it
// needs the unrestricted "bash" tool and its execute-unsafe arbitration.
var safeCommands = map[string]struct{}{
	"ls": {}, "cat": {}, "echo": {}, "pwd": {}, "whoami": {}, "date": {},
	"wc": {}, "head": {}, "tail": {}, "find": {}, "grep": {}, "which": {},
	"uname": {}, "df": {}, "du": {},
}

func runShell(ctx context.Context, command string, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if cctx.Err() == context.DeadlineExceeded {
		return Result{}, Errf(ErrTimeout, "command exceeded %s", timeout)
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return Result{}, Errf(ErrExecutionFailed, "failed to execute command: %v", err)
		}
	}

	out := stdout.String()
	truncated := false
	if len(out) > maxCommandOutput {
		out = out[:maxCommandOutput]
		truncated = true
	}

	msg := "Command executed successfully"
	if exitCode != 0 {
		msg = fmt.Sprintf("Command failed with exit code: %d", exitCode)
	}
	return Result{
		Success: exitCode == 0,
		Data: map[string]any{
			"stdout":      out,
			"stderr":      stderr.String(),
			"exit_code":   exitCode,
			"duration_ms": elapsed.Milliseconds(),
			"truncated":   truncated,
		},
		Message: msg,
	}, nil
}

// CommandTool executes allowlisted read-only shell commands.
type CommandTool struct{}

func (CommandTool) Name() string        { return "command" }
func (CommandTool) Description() string { return "Execute a safe shell command (allowlisted binaries)" }

func (CommandTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command":      map[string]any{"type": "string", "description": "Command to execute"},
			"timeout_secs": map[string]any{"type": "integer", "description": "Timeout in seconds (default: 30)"},
		},
		"required": []string{"command"},
	}
}

func (CommandTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	command, err := StringParam(params, "command")
	if err != nil {
		return Result{}, err
	}
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return Result{}, Errf(ErrInvalidParameters, "empty command")
	}
	if _, ok := safeCommands[fields[0]]; !ok {
		return Result{}, Errf(ErrPermissionDenied, "command %q is not in the allowed list", fields[0])
	}
	// The line runs through sh -c, so chaining, substitution and redirection
	// would reach binaries outside the allowlist.
	if strings.ContainsAny(command, ";&|`$<>\n") {
		return Result{}, Errf(ErrPermissionDenied, "shell operators are not allowed in the command tool; use bash")
	}
	timeout := time.Duration(OptionalInt(params, "timeout_secs", 30)) * time.Second
	return runShell(ctx, command, timeout)
}

// BashTool executes arbitrary shell commands. Classified execute-unsafe; the
// permission arbiter gates every call.
type BashTool struct{}

func (BashTool) Name() string        { return "bash" }
func (BashTool) Description() string { return "Execute a full shell command (requires approval)" }

func (BashTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command":      map[string]any{"type": "string", "description": "Shell command line"},
			"timeout_secs": map[string]any{"type": "integer", "description": "Timeout in seconds (default: 120)"},
		},
		"required": []string{"command"},
	}
}

func (BashTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	command, err := StringParam(params, "command")
	if err != nil {
		return Result{}, err
	}
	timeout := time.Duration(OptionalInt(params, "timeout_secs", 120)) * time.Second
	return runShell(ctx, command, timeout)
}
