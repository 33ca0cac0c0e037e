package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/shiragiku/toka/common/version"
	"github.com/shiragiku/toka/internal/toka/app"
	"github.com/shiragiku/toka/internal/toka/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("TOKA_CONFIG"), "path to the YAML config file (optional)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("toka %s (%s, built %s)\n", version.Version, version.GitCommit, version.BuildTime)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	toka, err := app.New(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize toka: %v\n", err)
		os.Exit(1)
	}
	defer toka.Stop()

	if err := toka.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running toka: %v\n", err)
		os.Exit(1)
	}
}
