// Package auditcmder provides the audit command for inspecting and
// verifying the hash-chained audit log.
package auditcmder

import (
	"github.com/spf13/cobra"
)

const auditLongDesc string = `Inspect and verify the audit log.

Every recorded interaction is chained to the one before it. Verification
replays the log from storage, recomputes every hash and compares the
result against the anchor saved by the previous verification.

Use subcommands:
  glassbox audit verify            Replay the log and check the anchor
  glassbox audit root              Print the root hash
  glassbox audit show [seq]        Print records
  glassbox audit proof <seq>       Print a Merkle inclusion proof
  glassbox audit check-proof <f>   Check a saved proof offline`

const auditShortDesc string = "Inspect and verify the audit log"

func NewAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: auditShortDesc,
		Long:  auditLongDesc,
	}

	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newRootCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newProofCmd())
	cmd.AddCommand(newCheckProofCmd())

	return cmd
}
