// Package configcmder provides the config command for managing persistent
// glassbox configuration stored in the .glassbox/ directory.
package configcmder

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/glassbox/pkg/cliui"
	"github.com/papercomputeco/glassbox/pkg/config"
)

const configLongDesc string = `Manage persistent glassbox configuration.

Configuration is stored as config.toml in the .glassbox/ directory and
provides default values for command flags. Precedence, highest first:
CLI flags, GLASSBOX_* environment variables, config.toml, built-in
defaults. Relative paths in config.toml resolve against .glassbox/.

Keys use dotted notation matching the TOML section structure:
  model.path, model.loader, model.max_output_tokens,
  vector_store.provider, vector_store.path, vector_store.metric,
  embedding.provider, embedding.model, embedding.dimensions,
  retrieval.top_n, retrieval.max_context_tokens,
  audit.provider, audit.path, audit.target,
  ingest.*, events.path, metrics.textfile

Examples:
  glassbox config set model.path /models/assistant.bin
  glassbox config set retrieval.top_n 8
  glassbox config get audit.provider
  glassbox config list`

const configShortDesc string = "Manage persistent glassbox configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// completeKeys offers config keys for the first positional argument.
func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func checkKey(key string) error {
	if config.IsValidConfigKey(key) {
		return nil
	}
	return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
		key, strings.Join(config.ValidConfigKeys(), ", "))
}

func openConfiger(cmd *cobra.Command) (*config.Configer, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfger, nil
}

func printTarget(w io.Writer, cfger *config.Configer) {
	target := cfger.GetTarget()
	if _, err := os.Stat(target); err == nil {
		fmt.Fprintf(w, "\n  %s %s\n\n", cliui.KeyStyle.Render("Config file:"), cliui.DimStyle.Render(target))
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}
