package auditcmder

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/glassbox/cmd/glassbox/boot"
	"github.com/papercomputeco/glassbox/pkg/audit"
	"github.com/papercomputeco/glassbox/pkg/cliui"
)

type rootCommander struct {
	at uint64
}

const rootLongDesc string = `Print the audit log root hash.

The root hash is the hash of the last record, or the genesis hash for an
empty log. With --at, prints the root as it was right after that record.
The Merkle root over every record hash is printed alongside.

Examples:
  glassbox audit root
  glassbox audit root --at 41`

const rootShortDesc string = "Print the root hash"

func newRootCmd() *cobra.Command {
	cmder := &rootCommander{}

	cmd := &cobra.Command{
		Use:   "root",
		Short: rootShortDesc,
		Long:  rootLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	boot.AddAuditFlags(cmd)
	cmd.Flags().Uint64Var(&cmder.at, "at", 0, "Print the root right after this sequence")

	return cmd
}

func (c *rootCommander) run(cmd *cobra.Command) (err error) {
	rt, err := boot.OpenAudit(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, rt.Close())
	}()

	var root string
	if cmd.Flags().Changed("at") {
		root, err = rt.Log.RootHashAt(c.at)
	} else {
		root, err = rt.Log.RootHash()
	}
	if err != nil {
		return err
	}

	merkleRoot, err := rt.Log.MerkleRoot()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	cliui.KV(out, "root", cliui.Hash(root, 0))
	cliui.KV(out, "merkle", cliui.Hash(merkleRoot, 0))
	cliui.KV(out, "records", fmt.Sprintf("%d", rt.Log.Len()))
	if root == audit.GenesisHash {
		cliui.KV(out, "", cliui.DimStyle.Render("empty log"))
	}
	fmt.Fprintln(out)
	return nil
}
