// Package glassboxcmder
package glassboxcmder

import (
	"github.com/spf13/cobra"

	askcmder "github.com/papercomputeco/glassbox/cmd/glassbox/ask"
	auditcmder "github.com/papercomputeco/glassbox/cmd/glassbox/audit"
	chatcmder "github.com/papercomputeco/glassbox/cmd/glassbox/chat"
	configcmder "github.com/papercomputeco/glassbox/cmd/glassbox/config"
	ingestcmder "github.com/papercomputeco/glassbox/cmd/glassbox/ingest"
	initcmder "github.com/papercomputeco/glassbox/cmd/glassbox/init"
	versioncmder "github.com/papercomputeco/glassbox/cmd/version"
)

const glassboxLongDesc string = `Glassbox is a deterministic, auditable question answering engine.

Answers come from a local model over chunks retrieved from your documents.
The same model, store and prompt always give the same answer, and every
recorded interaction is chained into a tamper-evident audit log.

Get started:
  glassbox init                      Create ./.glassbox/ and config.toml
  glassbox ingest ./docs             Load documents into the vector store
  glassbox ask "question"            Answer and record one prompt
  glassbox chat                      Interactive session
  glassbox audit verify              Replay and verify the audit log`

const glassboxShortDesc string = "Glassbox - Auditable Inference"

func NewGlassboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "glassbox",
		Short:        glassboxShortDesc,
		Long:         glassboxLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .glassbox/ directory")
	cmd.PersistentFlags().String("log-file", "", "Also append JSON debug logs to this file")

	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(ingestcmder.NewIngestCmd())
	cmd.AddCommand(askcmder.NewAskCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(auditcmder.NewAuditCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
