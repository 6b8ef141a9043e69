// ABOUTME: Subcommand implementations for coven-chat
// ABOUTME: chat runs the REPL; list, export and init work on saved state and config only

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"

	"github.com/2389/coven-chat/internal/config"
	"github.com/2389/coven-chat/internal/store"
)

func runChat(ctx context.Context, args []string) error {
	common, err := parseCommonArgs(args)
	if err != nil {
		return err
	}
	if len(common.rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", common.rest[0])
	}

	cfg, err := config.LoadOrDefault(common.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging, os.Stderr)

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", common.configPath)
	green.Print("    ▶ ")
	fmt.Printf("Store:   %s %s\n", cfg.Database.Backend, cfg.Database.Path)
	green.Print("    ▶ ")
	if cfg.Model.Provider == config.ProviderGateway {
		fmt.Printf("Model:   gateway %s\n", cfg.Model.URL)
	} else {
		fmt.Printf("Model:   %s\n", cfg.Model.Provider)
	}
	fmt.Println()

	a, err := openApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.ctrl.Start(ctx); err != nil {
		return fmt.Errorf("starting controller: %w", err)
	}

	if state := a.ctrl.Snapshot().Availability; !state.Available {
		color.New(color.FgYellow).Printf("%s: %s\n\n", state.Title, state.Message)
	}

	runCtx, cancel := context.WithCancel(ctx)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		if cfg.Availability.PollInterval > 0 {
			a.ctrl.WatchAvailability(runCtx, cfg.Availability.PollInterval)
		}
	}()
	defer func() {
		cancel()
		<-watchDone
	}()

	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	if err := newREPL(runCtx, a.ctrl, os.Stdin, os.Stdout).run(runCtx); err != nil {
		return err
	}

	fmt.Println("\nGoodbye!")
	return nil
}

// loadSaved reads the saved conversations without starting a controller.
func loadSaved(ctx context.Context, configPath string) ([]*store.Conversation, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging, os.Stderr)

	backend, err := openBackend(cfg.Database)
	if err != nil {
		return nil, err
	}
	defer backend.Close()

	return store.NewConversationStore(backend, cfg.Database.Key, logger).Load(ctx), nil
}

func runList(ctx context.Context, args []string) error {
	common, err := parseCommonArgs(args)
	if err != nil {
		return err
	}

	conversations, err := loadSaved(ctx, common.configPath)
	if err != nil {
		return err
	}
	writeConversationTable(os.Stdout, conversations, "")
	return nil
}

func runExport(ctx context.Context, args []string) error {
	common, err := parseCommonArgs(args)
	if err != nil {
		return err
	}

	var id, outPath string
	rest := common.rest
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--out", "-o":
			if i+1 >= len(rest) {
				return errors.New("--out requires a file argument")
			}
			outPath = rest[i+1]
			i++
		default:
			if id != "" {
				return fmt.Errorf("unexpected argument: %s", rest[i])
			}
			id = rest[i]
		}
	}
	if id == "" {
		return errors.New("usage: coven-chat export <id> [--out FILE]")
	}

	conversations, err := loadSaved(ctx, common.configPath)
	if err != nil {
		return err
	}
	fullID, err := resolveID(conversations, id)
	if err != nil {
		return err
	}

	var conv *store.Conversation
	for _, c := range conversations {
		if c.ID == fullID {
			conv = c
			break
		}
	}

	page, err := renderHTML(conv)
	if err != nil {
		return err
	}

	if outPath == "" {
		_, err = os.Stdout.Write(page)
		return err
	}
	if err := os.WriteFile(outPath, page, 0644); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	fmt.Printf("Exported %q to %s\n", conv.Title, outPath)
	return nil
}

func runInit(args []string) error {
	common, err := parseCommonArgs(args)
	if err != nil {
		return err
	}
	force := false
	for _, arg := range common.rest {
		switch arg {
		case "--force", "-f":
			force = true
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	return writeDefaultConfig(common.configPath, force)
}

// writeDefaultConfig writes Default() to path. An existing file is kept
// unless force is set.
func writeDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
	}

	data, err := config.Default().MarshalFile()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Wrote %s\n", path)
	return nil
}
