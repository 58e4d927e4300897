package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joshp123/gohome-cocoro/internal/config"
	"github.com/joshp123/gohome-cocoro/internal/sessionstore"
	"github.com/joshp123/gohome-cocoro/plugins/cocoro"
)

func main() {
	flags := flag.NewFlagSet("cocoro", flag.ExitOnError)
	configPath := flags.String("config", envOrDefault("GOHOME_CONFIG", config.DefaultPath), "path to config file")
	output := flags.String("output", "table", "output format: table, json or yaml")
	verbose := flags.Bool("v", false, "log requests to stderr")
	flags.Usage = usage
	_ = flags.Parse(os.Args[1:])

	args := flags.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	out, err := parseOutput(*output)
	if err != nil {
		fatal("output", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("load config", err)
	}

	if args[0] == "plugins" {
		pluginsCmd(ctx, cfg, args[1:], out)
		return
	}

	client, closeFn := newClient(cfg, *verbose)
	defer closeFn()

	switch args[0] {
	case "login":
		loginCmd(ctx, client, out)
	case "devices":
		devicesCmd(ctx, client, out)
	case "status":
		statusCmd(ctx, client, args[1:], out)
	case "mode":
		modeCmd(ctx, client, args[1:], out)
	default:
		usage()
		os.Exit(2)
	}
}

func newClient(cfg *config.Config, verbose bool) (*cocoro.Client, func()) {
	if cfg.Cocoro == nil {
		fatal("config", fmt.Errorf("cocoro section is not configured"))
	}
	runtimeCfg, err := cocoro.ConfigFromSettings(cfg.Cocoro)
	if err != nil {
		fatal("config", err)
	}

	var handler slog.Handler = slog.NewTextHandler(io.Discard, nil)
	if verbose {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	runtimeCfg.Logger = slog.New(handler)

	store, err := sessionstore.Open(cfg.Session)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: session store unavailable (%v); logging in fresh\n", err)
		store = nil
	}
	runtimeCfg.Store = store

	client, err := cocoro.NewClient(runtimeCfg)
	if err != nil {
		fatal("client", err)
	}
	return client, func() {
		if closer, ok := store.(io.Closer); ok {
			_ = closer.Close()
		}
	}
}

func usage() {
	fmt.Println("cocoro [--config path] [--output table|json|yaml] [-v] <command> [args]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  login")
	fmt.Println("  devices")
	fmt.Println("  status [--device <name|id>]")
	fmt.Println("  mode [on|off]")
	fmt.Println("  plugins list")
	fmt.Println("  plugins describe <plugin_id>")
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
