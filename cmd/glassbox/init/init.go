// Package initcmder provides the init command for initializing a local
// .glassbox/ directory in the current working directory.
package initcmder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/glassbox/pkg/cliui"
	"github.com/papercomputeco/glassbox/pkg/config"
	"github.com/papercomputeco/glassbox/pkg/dotdir"
)

type initCommander struct {
	preset string
	force  bool
}

const initLongDesc string = `Initialize a new .glassbox/ directory in the current working directory.

Creates a local .glassbox/ directory that takes precedence over the
default ~/.glassbox/ directory, and writes a config.toml. The vector
store, audit log and audit anchor live next to it unless configured
elsewhere.

Presets:
  local    hashing embeddings, sqlite-vec store, file audit log (default)
  ollama   embeddings from a local Ollama server
  sqlite   audit log in a SQLite database

Examples:
  glassbox init
  glassbox init --preset ollama`

const initShortDesc string = "Initialize a local .glassbox/ directory"

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "", "Config preset ("+strings.Join(config.ValidPresetNames(), ", ")+")")
	cmd.Flags().BoolVar(&cmder.force, "force", false, "Overwrite an existing config.toml")

	return cmd
}

func (c *initCommander) run(cmd *cobra.Command) error {
	preset := c.preset
	if preset == "" {
		preset = "local"
	}
	cfg, err := config.PresetConfig(preset)
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir, err := dotdir.NewManager().InitLocal(cwd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	path := filepath.Join(dir, "config.toml")

	_, err = os.Stat(path)
	switch {
	case err == nil && !c.force:
		if c.preset != "" {
			return fmt.Errorf("%s already exists; pass --force to overwrite", path)
		}
		fmt.Fprintf(out, "\n  %s Already initialized: %s\n\n", cliui.SuccessMark, cliui.DimStyle.Render(dir))
		return nil
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("checking config: %w", err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return err
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s Initialized %s\n", cliui.SuccessMark, cliui.DimStyle.Render(dir))
	cliui.KV(out, "preset", preset)
	cliui.KV(out, "config", path)
	fmt.Fprintf(out, "\n  %s\n\n", cliui.DimStyle.Render("Next: glassbox config set model.path <file>"))
	return nil
}
