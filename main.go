package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"perceptive/config"
	"perceptive/fetcher"
	"perceptive/imageprocessor"
	"perceptive/logging"
	"perceptive/lookup"
	"perceptive/signalhandler"
	"perceptive/utils"
)

// Exit codes
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signalhandler.Context(context.Background())
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	name := filepath.Base(os.Args[0])

	args, err := utils.ParseArguments(name, argv)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		utils.PrintUsage(stderr, name, utils.NewFlagSet(name))
		return exitUsage
	}
	if args.Help {
		utils.PrintUsage(stdout, name, args.Flags)
		return exitOK
	}

	cfg, err := config.Load(args.ConfigFile, args.Flags)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	if cfg.Debug {
		if err := logging.SetupLogger(cfg.LogFile); err != nil {
			fmt.Fprintf(stderr, "Warning: Failed to setup logging: %v\n", err)
		} else {
			fmt.Fprintf(stdout, "Debug mode enabled. Logging to: %s\n", cfg.LogFile)
			defer logging.CloseLogger()
		}
	}

	hasher, err := imageprocessor.NewHasher(cfg.Hasher)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	f, err := fetcher.New(ctx, cfg.Fetcher())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	if f.Demoted() {
		fmt.Fprintf(stdout, "IPFS server %s unreachable, using gateway %s\n", cfg.DaemonAddr, cfg.GatewayURL)
	}

	l := lookup.New(cfg.Lookup(), hasher, f, &http.Client{Timeout: cfg.GatewayTimeout}, stdout)

	result, err := l.Run(ctx, args.Image)
	if err != nil {
		reportFailure(stderr, args.Image, err)
		return exitFailure
	}

	if !result.Found {
		fmt.Fprintf(stdout, "No metadata known for %s\n", args.Image)
		return exitOK
	}

	fmt.Fprintln(stdout, renderJSON(result.Metadata))
	return exitOK
}

// reportFailure prints a one-line reason for a failed lookup
func reportFailure(w io.Writer, image string, err error) {
	logging.LogError("Lookup of %s failed: %v", image, err)

	switch {
	case errors.Is(err, imageprocessor.ErrHashingFailure):
		fmt.Fprintf(w, "Error hashing image: %v\n", err)
	case errors.Is(err, lookup.ErrIndexUnavailable):
		fmt.Fprintf(w, "Error loading index: %v\n", err)
	case errors.Is(err, lookup.ErrMetadataUnavailable):
		fmt.Fprintf(w, "Error fetching metadata: %v\n", err)
	case errors.Is(err, context.Canceled):
		fmt.Fprintf(w, "Interrupted\n")
	default:
		fmt.Fprintf(w, "Error: %v\n", err)
	}
}

func renderJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
