// Command localagent is a headless chat surface over the local-LLM agent
// core: it loads a GGUF model, registers the built-in and external tools, and
// drives the agent loop from stdin.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"localagent/internal/agent"
	"localagent/internal/chat"
	"localagent/internal/config"
	"localagent/internal/gguf"
	"localagent/internal/inference"
	"localagent/internal/mcpclient"
	"localagent/internal/observability"
	"localagent/internal/permissions"
	rt "localagent/internal/runtime"
	"localagent/internal/storage"
	"localagent/internal/tools"
	"localagent/internal/version"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config.yaml")
		modelPath  = flag.String("model", "", "GGUF model to load (default: first model in models dir)")
		prompt     = flag.String("prompt", "", "run a single prompt and exit")
		yolo       = flag.Bool("auto-approve", false, "approve all tool invocations without asking")
		showVer    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Println("localagent", version.Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.Log.Path, cfg.Log.Level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitOTel(ctx, observability.OTelConfig{
			OTLP:           cfg.Telemetry.Endpoint,
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: version.Version,
			Environment:    cfg.Telemetry.Environment,
		})
		if err != nil {
			log.Warn().Err(err).Msg("otel_init_failed")
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	if err := run(ctx, cfg, *modelPath, *prompt, *yolo); err != nil {
		log.Error().Err(err).Msg("fatal")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, modelPath, oneShot string, yolo bool) error {
	convStore, err := storage.NewConversationStore(cfg.ConversationsDir())
	if err != nil {
		return err
	}
	settingsStore, err := storage.NewSettingsStore(cfg.DataDir)
	if err != nil {
		return err
	}
	settings := settingsStore.Load()
	if settings.ModelsDir == "" {
		settings.ModelsDir = cfg.ModelsDir
	}

	if modelPath == "" {
		models, err := gguf.ScanDir(settings.ModelsDir)
		if err != nil {
			return fmt.Errorf("scan models dir: %w", err)
		}
		if len(models) == 0 {
			return fmt.Errorf("no .gguf models found in %s", settings.ModelsDir)
		}
		modelPath = models[0].Path
	}

	runtimeBinding, err := rt.Default()
	if err != nil {
		return fmt.Errorf("%w; rebuild with a llama.cpp binding package linked in", err)
	}
	engine := inference.New(runtimeBinding)
	defer engine.Close()
	if err := engine.Init(); err != nil {
		return err
	}

	info, err := engine.LoadModel(ctx, modelPath, settings.GPULayers)
	if err != nil {
		return err
	}
	fmt.Printf("loaded %s (ctx %d, %.1fB params)\n",
		filepath.Base(info.Path), info.ContextLength, float64(info.ParamCount)/1e9)

	policy := permissions.Policy{AutoApproveAll: yolo || settings.AutoApproveAll, Allowlist: map[string]struct{}{}}
	for _, name := range settings.AllowedTools {
		policy.Allowlist[name] = struct{}{}
	}
	perms := permissions.NewManager(policy)

	registry := buildRegistry(cfg)
	mcpMgr := mcpclient.NewManager()
	defer mcpMgr.Close()
	_ = mcpMgr.RegisterFromConfig(ctx, registry, cfg.MCP)

	loop := &agent.Loop{
		Gen:   engine,
		Tools: registry,
		Perms: perms,
		Cfg: agent.Config{
			MaxIterations:  cfg.Agent.MaxIterations,
			ToolTimeout:    cfg.Agent.ToolTimeout(),
			HistoryWindow:  cfg.Agent.HistoryWindow,
			Persona:        settings.SystemPrompt,
			GenerateTitles: cfg.Agent.GenerateTitles,
		},
		OnDelta: func(text string) { fmt.Print(text) },
	}

	stdin := bufio.NewReader(os.Stdin)
	go answerPermissionPrompts(perms, stdin)

	params := settings.Params()
	conv := storage.NewConversation(nil)

	turn := func(input string) error {
		conv.AddMessage(chat.NewMessage(chat.RoleUser, input))
		_, err := loop.Run(ctx, conv, params)
		fmt.Println()
		if saveErr := convStore.Save(conv); saveErr != nil {
			log.Warn().Err(saveErr).Msg("conversation_save_failed")
		}
		return err
	}

	if oneShot != "" {
		return turn(oneShot)
	}

	fmt.Println("localagent ready — type a message, or /quit to exit")
	for {
		fmt.Print("> ")
		line, err := stdin.ReadString('\n')
		if err != nil {
			return nil
		}
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/new":
			conv = storage.NewConversation(nil)
			fmt.Println("started a new conversation")
			continue
		case line == "/stop":
			loop.Stop()
			continue
		}
		if err := turn(line); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// buildRegistry installs the enabled built-in tools.
func buildRegistry(cfg config.Config) *tools.Registry {
	registry := tools.NewRegistry()

	registry.Register(tools.ThinkTool{})
	registry.Register(&tools.TodoWriteTool{})

	skillStore := &tools.SkillStore{Dir: cfg.SkillsDir()}
	registry.Register(&tools.SkillListTool{Store: skillStore})
	registry.Register(&tools.SkillCreateTool{Store: skillStore})
	registry.Register(&tools.SkillInvokeTool{Store: skillStore})

	if cfg.Tools.EnableFilesystem {
		registry.Register(tools.FileReadTool{})
		registry.Register(tools.FileListTool{})
		registry.Register(tools.FileWriteTool{})
		registry.Register(tools.FileEditTool{})
		registry.Register(tools.FileDeleteTool{})
		registry.Register(tools.DirectoryCreateTool{})
		registry.Register(tools.GlobTool{})
		registry.Register(tools.FileSearchTool{})
		registry.Register(tools.PDFReadTool{})
	}
	if cfg.Tools.EnableCommands {
		registry.Register(tools.CommandTool{})
		registry.Register(tools.BashTool{})
	}
	if cfg.Tools.EnableGit {
		registry.Register(tools.GitStatusTool{})
		registry.Register(tools.GitDiffTool{})
		registry.Register(tools.GitLogTool{})
	}
	if cfg.Tools.EnableWeb {
		registry.Register(tools.NewWebFetchTool())
		if cfg.Tools.ExaAPIKey != "" {
			registry.Register(tools.NewExaSearchTool(tools.ExaSearchConfig{APIKey: cfg.Tools.ExaAPIKey}))
		}
	}
	return registry
}

// answerPermissionPrompts resolves interactive permission requests on stdin.
// It only reads while the agent loop is blocked inside Run, so it never
// competes with the REPL prompt.
func answerPermissionPrompts(perms *permissions.Manager, stdin *bufio.Reader) {
	for req := range perms.Notifications() {
		fmt.Printf("\nallow %s (%s) on %q? [y/N] ", req.Tool, req.Level, req.Target)
		line, err := stdin.ReadString('\n')
		if err != nil {
			perms.Resolve(req.ID, permissions.Denied)
			continue
		}
		if s := strings.ToLower(strings.TrimSpace(line)); s == "y" || s == "yes" {
			perms.Resolve(req.ID, permissions.Approved)
		} else {
			perms.Resolve(req.ID, permissions.Denied)
		}
	}
}
