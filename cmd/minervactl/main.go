// Package main provides minervactl, the operator CLI for the Minerva
// service order engine.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pCruvinel/Minervav2-sub003/internal/config"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
)

// cliOptions are the persistent flags.
type cliOptions struct {
	jsonOutput bool
	logLevel   string
	loadConfig func() (*config.Config, error)
}

func newRootCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	opts := &cliOptions{loadConfig: loadConfig}

	root := &cobra.Command{
		Use:   "minervactl",
		Short: "Operate the Minerva service order engine",
		Long: `minervactl runs maintenance tasks against the engine's database.

Configuration is read the same way the server reads it: config.yaml,
then environment variables (a local .env is loaded when present).

Examples:
  minervactl migrate                                   # Apply schema and River migrations
  minervactl token --id ana --cargo coord_obras --sector obras
  minervactl catalog                                   # List order types
  minervactl order 0190f7a0-...                        # Show an order and its situation`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return logger.Init(opts.logLevel, "console")
		},
	}
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format instead of YAML")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newMigrateCmd(opts),
		newTokenCmd(opts),
		newCatalogCmd(opts),
		newOrderCmd(opts),
		newOpenCmd(opts),
	)
	return root
}

// render writes v as YAML, or JSON with --json. YAML goes through JSON
// first so both outputs use the json field names.
func (o *cliOptions) render(w io.Writer, v any) error {
	if o.jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(config.Load).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}
