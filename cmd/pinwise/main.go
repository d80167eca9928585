// Command pinwise classifies hardware observations, composes component
// projects onto a board and renders code skeletons for them.
//
// Usage:
//
//	pinwise <command> [flags]
//
// Commands:
//
//	catalog list       List catalog components
//	catalog validate   Validate a catalog file
//	classify           Classify an observation batch
//	compose            Place components into a project
//	remove             Remove an instance from a project
//	events             View an engine event log
//	rules list         List compatibility rules
//	projects           List or delete projects in a SQLite store
//	version            Print build information
//
// Examples:
//
//	# Plan a project and write it to disk
//	pinwise compose --project lamp.json LED Button TemperatureSensor_I2C
//
//	# Two LEDs, and emit the code skeleton
//	pinwise compose --project lamp.json --code lamp.py LED:2
//
//	# Classify a bus scan and traces
//	pinwise classify scan.yaml
//
//	# Show allocator decisions from an event log
//	pinwise events --stage allocator events.plog
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pinwise/pinwise-go/pkg/engine"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	catalog    string
	board      string
	strict     bool
	eventLog   string
	logLevel   string
	jsonOut    bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "pinwise",
		Short: "Hardware signal classification and GPIO resource allocation",
		Long: `pinwise recognizes components from electrical observations, places
component instances onto a board's pins and bus addresses without
conflicts, and renders a runnable code skeleton for the result.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Engine config file (YAML)")
	pf.StringVar(&opts.catalog, "catalog", "", "Catalog file (default: embedded starter kit)")
	pf.StringVar(&opts.board, "board", "", "Board file (default: embedded 40-pin board)")
	pf.BoolVar(&opts.strict, "strict", false, "Treat rule warnings as blocking")
	pf.StringVar(&opts.eventLog, "event-log", "", "Append engine events to this CBOR file")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.BoolVar(&opts.jsonOut, "json", false, "Write JSON instead of text")

	root.AddCommand(
		newCatalogCmd(opts),
		newClassifyCmd(opts),
		newComposeCmd(opts),
		newRemoveCmd(opts),
		newEventsCmd(opts),
		newRulesCmd(opts),
		newProjectsCmd(opts),
		newVersionCmd(),
	)
	return root
}

// config merges the config file with flags set on the command line.
func (o *globalOptions) config(cmd *cobra.Command) (engine.Config, error) {
	cfg := engine.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = engine.LoadConfig(o.configPath); err != nil {
			return cfg, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("catalog") {
		cfg.CatalogPath = o.catalog
	}
	if flags.Changed("board") {
		cfg.BoardPath = o.board
	}
	if flags.Changed("strict") {
		cfg.Strict = o.strict
	}
	if flags.Changed("event-log") {
		cfg.EventLog = o.eventLog
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	return cfg, cfg.Validate()
}

// engine builds an engine whose operational log goes to stderr.
func (o *globalOptions) engine(cmd *cobra.Command) (*engine.Engine, error) {
	cfg, err := o.config(cmd)
	if err != nil {
		return nil, err
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return engine.New(cfg, engine.WithLogger(logger))
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
