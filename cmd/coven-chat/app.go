// ABOUTME: Wires config into a store backend, a model provider and a conversation controller
// ABOUTME: Shared by every subcommand that touches saved conversations

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/coven-chat/internal/config"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/model"
	"github.com/2389/coven-chat/internal/model/echo"
	"github.com/2389/coven-chat/internal/model/gateway"
	"github.com/2389/coven-chat/internal/store"
)

// commonArgs are the flags every subcommand accepts.
type commonArgs struct {
	configPath string
	rest       []string
}

// parseCommonArgs pulls --config out of args and returns what is left.
func parseCommonArgs(args []string) (commonArgs, error) {
	out := commonArgs{configPath: config.DefaultPath()}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config", "-c":
			if i+1 >= len(args) {
				return out, fmt.Errorf("%s requires a file argument", args[i])
			}
			out.configPath = args[i+1]
			i++
		default:
			out.rest = append(out.rest, args[i])
		}
	}
	return out, nil
}

// openBackend opens the key-value backend selected by cfg.
func openBackend(cfg config.DatabaseConfig) (store.Backend, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		s, err := store.NewSQLiteStoreWithDriver(cfg.Driver, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return s, nil
	case config.BackendFile:
		s, err := store.NewFileStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("opening file store: %w", err)
		}
		return s, nil
	case config.BackendMemory:
		return store.NewMockStore(), nil
	default:
		return nil, fmt.Errorf("unknown database backend %q", cfg.Backend)
	}
}

// newProvider builds the model provider selected by cfg. The returned close
// func releases provider connections.
func newProvider(cfg *config.Config, logger *slog.Logger) (model.Provider, func() error, error) {
	switch cfg.Model.Provider {
	case config.ProviderEcho:
		p := echo.New(echo.Options{Delay: cfg.Model.EchoDelay, Logger: logger})
		return p, func() error { return nil }, nil
	case config.ProviderGateway:
		p, err := gateway.New(gateway.Options{
			URL:            cfg.Model.URL,
			GRPCAddr:       cfg.Model.GRPCAddr,
			AgentID:        cfg.Model.AgentID,
			Sender:         cfg.Model.Sender,
			Token:          cfg.Model.Token,
			CheckMode:      cfg.Availability.Check,
			RequestTimeout: cfg.Model.RequestTimeout,
			Logger:         logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating gateway provider: %w", err)
		}
		return p, p.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown model provider %q", cfg.Model.Provider)
	}
}

// app is an opened controller with everything it depends on.
type app struct {
	cfg           *config.Config
	logger        *slog.Logger
	backend       store.Backend
	conversations *store.ConversationStore
	ctrl          *conversation.Controller
	closeProvider func() error
}

// openApp builds the controller from cfg. Start is left to the caller.
func openApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	backend, err := openBackend(cfg.Database)
	if err != nil {
		return nil, err
	}
	conversations := store.NewConversationStore(backend, cfg.Database.Key, logger)

	provider, closeProvider, err := newProvider(cfg, logger)
	if err != nil {
		backend.Close()
		return nil, err
	}

	ctrl, err := conversation.New(conversation.Options{
		Provider: provider,
		Store:    conversations,
		Logger:   logger,
	})
	if err != nil {
		closeProvider()
		backend.Close()
		return nil, fmt.Errorf("creating controller: %w", err)
	}

	return &app{
		cfg:           cfg,
		logger:        logger,
		backend:       backend,
		conversations: conversations,
		ctrl:          ctrl,
		closeProvider: closeProvider,
	}, nil
}

// Close shuts the controller down before releasing the provider and backend.
func (a *app) Close() error {
	return errors.Join(a.ctrl.Close(), a.closeProvider(), a.backend.Close())
}

// resolveID finds the conversation whose ID equals or starts with prefix.
// The listing shows shortened IDs, so a unique prefix is enough.
func resolveID(conversations []*store.Conversation, prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", errors.New("conversation id is required")
	}
	var found string
	for _, c := range conversations {
		if c.ID == prefix {
			return c.ID, nil
		}
		if strings.HasPrefix(c.ID, prefix) {
			if found != "" {
				return "", fmt.Errorf("conversation id %q is ambiguous", prefix)
			}
			found = c.ID
		}
	}
	if found == "" {
		return "", fmt.Errorf("conversation %s: %w", prefix, store.ErrNotFound)
	}
	return found, nil
}

// shortID is the prefix of id shown in listings.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
