package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/glassbox/pkg/cliui"
)

const setLongDesc string = `Set a configuration value.

Writes key = value to config.toml in the .glassbox/ directory, creating
the file when needed. Numeric keys are validated before writing.

Examples:
  glassbox config set model.path /models/assistant.bin
  glassbox config set audit.provider sqlite
  glassbox config set ingest.extensions txt,md,rst`

const setShortDesc string = "Set a configuration value"

func newSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "set <key> <value>",
		Short:             setShortDesc,
		Long:              setLongDesc,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completeKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(cmd, args[0], args[1])
		},
	}

	return cmd
}

func runSet(cmd *cobra.Command, key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	cfger, err := openConfiger(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printTarget(out, cfger)

	if err := cfger.SetConfigValue(key, value); err != nil {
		return err
	}

	fmt.Fprintf(out, "  %s Set %s = %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(key),
		cliui.ValueStyle.Render(value),
	)
	return nil
}
