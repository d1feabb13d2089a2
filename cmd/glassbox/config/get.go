package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/glassbox/pkg/cliui"
)

const getLongDesc string = `Get a configuration value.

Prints the effective value of key from config.toml, falling back to the
built-in default when the file does not set it.

Examples:
  glassbox config get model.path
  glassbox config get retrieval.max_context_tokens`

const getShortDesc string = "Get a configuration value"

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "get <key>",
		Short:             getShortDesc,
		Long:              getLongDesc,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, args[0])
		},
	}

	return cmd
}

func runGet(cmd *cobra.Command, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	cfger, err := openConfiger(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printTarget(out, cfger)

	value, err := cfger.GetConfigValue(key)
	if err != nil {
		return err
	}

	if value == "" {
		value = cliui.DimStyle.Render("<not set>")
	}
	cliui.KV(out, key, value)
	fmt.Fprintln(out)
	return nil
}
