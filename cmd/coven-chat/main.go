// ABOUTME: Entry point for coven-chat, a terminal chat client for a local or gateway-hosted model
// ABOUTME: Dispatches the chat, list, export, init and version subcommands

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                          _           _
  ___ _____   _____ _ __         ___| |__   __ _| |_
 / __/ _ \ \ / / _ \ '_ \ _____ / __| '_ \ / _' | __|
| (_| (_) \ V /  __/ | | |_____| (__| | | | (_| | |_
 \___\___/ \_/ \___|_| |_|      \___|_| |_|\__,_|\__|
`

func main() {
	cmd := "chat"
	var args []string
	if len(os.Args) > 1 {
		cmd = os.Args[1]
		args = os.Args[2:]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd {
	case "chat":
		err = runChat(ctx, args)
	case "list":
		err = runList(ctx, args)
	case "export":
		err = runExport(ctx, args)
	case "init":
		err = runInit(args)
	case "version":
		fmt.Printf("coven-chat %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: coven-chat [command] [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  chat                        Interactive chat (default)")
	fmt.Println("  list                        List saved conversations")
	fmt.Println("  export <id> [--out FILE]    Export a conversation as HTML")
	fmt.Println("  init [--force]              Write a default config file")
	fmt.Println("  version                     Print the version")
	fmt.Println()
	yellow.Println("Flags:")
	fmt.Println("  --config, -c FILE           Config file (default: $COVEN_CHAT_CONFIG or ~/.config/coven/chat.yaml)")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  COVEN_CHAT_CONFIG           Config file path")
	fmt.Println("  COVEN_TOKEN                 Usable in the config as ${COVEN_TOKEN}")
	fmt.Println()
}
