package main

import (
	"fmt"
	"os"

	"github.com/mitchellh/cli"
	"github.com/spf13/afero"

	nestcli "github.com/birbparty/nestlink/internal/cli"
	"github.com/birbparty/nestlink/internal/telemetry"
)

const version = "1.0.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	telCfg := telemetry.NewConfigFromEnv("nestctl")
	telCfg.ServiceVersion = version
	if os.Getenv("LOG_LEVEL") == "" {
		telCfg.LogLevel = "warn"
	}
	logger, rotator := telemetry.NewLogger(telCfg, os.Stderr)
	if rotator != nil {
		defer rotator.Close()
	}

	ui := &cli.ColoredUi{
		ErrorColor: cli.UiColorRed,
		WarnColor:  cli.UiColorYellow,
		Ui: &cli.BasicUi{
			Reader:      os.Stdin,
			Writer:      os.Stdout,
			ErrorWriter: os.Stderr,
		},
	}

	meta := &nestcli.Meta{
		UI:     ui,
		Logger: logger,
		Fs:     afero.NewOsFs(),
	}

	c := &cli.CLI{
		Name:       "nestctl",
		Version:    version,
		Args:       args,
		Commands:   nestcli.Commands(meta),
		HelpWriter: os.Stdout,
	}

	code, err := c.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing CLI: %v\n", err)
		return 1
	}
	return code
}
