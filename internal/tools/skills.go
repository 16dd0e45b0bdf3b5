package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// skillNameRe keeps skill names filesystem-safe.
var skillNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-_]*$`)

// skillRunners maps entrypoint files to their interpreters, in preference
// order.
var skillRunners = []struct {
	file string
	cmd  string
}{
	{"run.sh", "sh"},
	{"main.py", "python3"},
	{"main.js", "node"},
}

// SkillStore holds on-disk skills: one directory per skill with a SKILL.md
// description plus executable files.
type SkillStore struct {
	Dir string
}

func (s *SkillStore) skillPath(name string) (string, error) {
	if !skillNameRe.MatchString(name) {
		return "", Errf(ErrInvalidParameters, "invalid skill name %q", name)
	}
	return filepath.Join(s.Dir, name), nil
}

// SkillListTool enumerates installed skills.
type SkillListTool struct{ Store *SkillStore }

func (t *SkillListTool) Name() string        { return "skill_list" }
func (t *SkillListTool) Description() string { return "List installed skills" }

func (t *SkillListTool) Schema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *SkillListTool) Execute(_ context.Context, _ map[string]any) (Result, error) {
	entries, err := os.ReadDir(t.Store.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Success: true, Data: map[string]any{"skills": []any{}}, Message: "No skills installed"}, nil
		}
		return Result{}, Errf(ErrExecutionFailed, "read skills directory: %v", err)
	}
	var skills []any
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		desc := ""
		if b, err := os.ReadFile(filepath.Join(t.Store.Dir, e.Name(), "SKILL.md")); err == nil {
			desc = firstLine(string(b))
		}
		skills = append(skills, map[string]any{"name": e.Name(), "description": desc})
	}
	sort.Slice(skills, func(i, j int) bool {
		return skills[i].(map[string]any)["name"].(string) < skills[j].(map[string]any)["name"].(string)
	})
	return Result{
		Success: true,
		Data:    map[string]any{"skills": skills},
		Message: fmt.Sprintf("%d skills installed", len(skills)),
	}, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimPrefix(strings.TrimSpace(s), "# ")
}

// SkillCreateTool installs a new skill from model-provided files.
type SkillCreateTool struct{ Store *SkillStore }

func (t *SkillCreateTool) Name() string { return "skill_create" }
func (t *SkillCreateTool) Description() string {
	return "Create a reusable skill: a SKILL.md description plus executable files"
}

func (t *SkillCreateTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":        map[string]any{"type": "string", "description": "Skill name (lowercase, dashes allowed)"},
			"description": map[string]any{"type": "string", "description": "One-line summary"},
			"content":     map[string]any{"type": "string", "description": "SKILL.md body explaining how the skill works"},
			"files":       map[string]any{"type": "object", "description": "Map of file name to file content; include an entrypoint (run.sh or main.py)"},
		},
		"required": []string{"name", "content"},
	}
}

func (t *SkillCreateTool) Execute(_ context.Context, params map[string]any) (Result, error) {
	name, err := StringParam(params, "name")
	if err != nil {
		return Result{}, err
	}
	content, err := StringParam(params, "content")
	if err != nil {
		return Result{}, err
	}
	dir, err := t.Store.skillPath(name)
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, Errf(ErrExecutionFailed, "create skill directory: %v", err)
	}

	doc := content
	if desc := OptionalString(params, "description", ""); desc != "" && !strings.HasPrefix(doc, "#") {
		doc = "# " + desc + "\n\n" + doc
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(doc), 0o644); err != nil {
		return Result{}, Errf(ErrExecutionFailed, "write SKILL.md: %v", err)
	}

	written := []any{"SKILL.md"}
	if files, ok := params["files"].(map[string]any); ok {
		for fname, raw := range files {
			body, ok := raw.(string)
			if !ok {
				return Result{}, Errf(ErrInvalidParameters, "file %q content must be a string", fname)
			}
			clean := filepath.Clean(fname)
			if clean != fname || strings.Contains(clean, "..") || filepath.IsAbs(clean) {
				return Result{}, Errf(ErrInvalidParameters, "invalid file name %q", fname)
			}
			if err := os.WriteFile(filepath.Join(dir, clean), []byte(body), 0o755); err != nil {
				return Result{}, Errf(ErrExecutionFailed, "write %s: %v", clean, err)
			}
			written = append(written, clean)
		}
	}
	return Result{
		Success: true,
		Data:    map[string]any{"name": name, "files": written},
		Message: fmt.Sprintf("Skill %q created with %d files", name, len(written)),
	}, nil
}

// SkillInvokeTool runs a skill's entrypoint.
type SkillInvokeTool struct{ Store *SkillStore }

func (t *SkillInvokeTool) Name() string        { return "skill_invoke" }
func (t *SkillInvokeTool) Description() string { return "Run an installed skill and return its output" }

func (t *SkillInvokeTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string", "description": "Skill to run"},
			"args": map[string]any{"type": "string", "description": "Arguments passed to the entrypoint"},
		},
		"required": []string{"name"},
	}
}

func (t *SkillInvokeTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	name, err := StringParam(params, "name")
	if err != nil {
		return Result{}, err
	}
	dir, err := t.Store.skillPath(name)
	if err != nil {
		return Result{}, err
	}
	if _, err := os.Stat(dir); err != nil {
		return Result{}, Errf(ErrNotFound, "skill %q is not installed", name)
	}

	for _, runner := range skillRunners {
		entry := filepath.Join(dir, runner.file)
		if _, err := os.Stat(entry); err != nil {
			continue
		}
		command := fmt.Sprintf("cd %q && %s %q", dir, runner.cmd, runner.file)
		if args := OptionalString(params, "args", ""); args != "" {
			command += " " + args
		}
		res, err := runShell(ctx, command, 60*time.Second)
		if err != nil {
			return Result{}, err
		}
		res.Message = fmt.Sprintf("Skill %q: %s", name, res.Message)
		return res, nil
	}
	return Result{}, Errf(ErrExecutionFailed, "skill %q has no entrypoint (run.sh, main.py, main.js)", name)
}
