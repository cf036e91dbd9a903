package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bobmcallan/coursegen/internal/app"
)

func main() {
	cfg, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(ExitConfigError)
	}

	a, err := app.NewApp(cfg.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize app: %v\n", err)
		os.Exit(ExitConfigError)
	}
	defer a.Close()

	var reportOut *os.File = os.Stdout
	if cfg.ReportPath != "" {
		f, err := os.Create(cfg.ReportPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open report file: %v\n", err)
			os.Exit(ExitConfigError)
		}
		defer f.Close()
		reportOut = f
	}

	code := run(context.Background(), a, cfg, reportOut)
	os.Exit(code)
}
