package auditcmder

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/glassbox/cmd/glassbox/boot"
	"github.com/papercomputeco/glassbox/pkg/audit"
	"github.com/papercomputeco/glassbox/pkg/cliui"
	"github.com/papercomputeco/glassbox/pkg/dotdir"
)

type verifyCommander struct {
	from        uint64
	to          uint64
	resetAnchor bool
}

const verifyLongDesc string = `Replay the audit log and check it.

Records in [--from, --to) are read back from storage and every hash is
recomputed. A full verification also compares the log against the anchor
saved by the last successful run, which detects records cut from the end,
and then saves a new anchor.

Use --reset-anchor after deliberately starting a new log.

Examples:
  glassbox audit verify
  glassbox audit verify --from 100 --to 200`

const verifyShortDesc string = "Replay and verify the audit log"

func newVerifyCmd() *cobra.Command {
	cmder := &verifyCommander{}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: verifyShortDesc,
		Long:  verifyLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	boot.AddAuditFlags(cmd)
	cmd.Flags().Uint64Var(&cmder.from, "from", 0, "First sequence to verify")
	cmd.Flags().Uint64Var(&cmder.to, "to", 0, "Sequence to stop before (default: log length)")
	cmd.Flags().BoolVar(&cmder.resetAnchor, "reset-anchor", false, "Discard the saved anchor before verifying")

	return cmd
}

func (c *verifyCommander) run(cmd *cobra.Command) (err error) {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	rt, err := boot.OpenAudit(ctx, cmd)
	if err != nil {
		return report(cmd, err)
	}
	defer func() {
		err = errors.Join(err, rt.Close())
	}()

	ddm := dotdir.NewManager()
	if c.resetAnchor {
		if err := ddm.ClearAnchor(rt.Dir); err != nil {
			return err
		}
	}

	n := rt.Log.Len()
	to := c.to
	if !cmd.Flags().Changed("to") {
		to = n
	}

	if err := rt.Log.Verify(ctx, c.from, to); err != nil {
		return report(cmd, err)
	}

	full := c.from == 0 && to == n
	if full {
		anchor, err := ddm.LoadAnchor(rt.Dir)
		if err != nil {
			return err
		}
		if anchor != nil {
			if err := rt.Log.CheckAnchor(anchor.Length, anchor.RootHash); err != nil {
				return report(cmd, err)
			}
		}
	}

	root, err := rt.Log.RootHash()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s %d records verified\n", cliui.SuccessMark, to-min(c.from, to))
	cliui.KV(out, "root", cliui.Hash(root, 0))

	if full {
		err := ddm.SaveAnchor(&dotdir.Anchor{
			Length:     n,
			RootHash:   root,
			VerifiedAt: time.Now().UTC(),
		}, rt.Dir)
		if err != nil {
			return err
		}
		cliui.KV(out, "anchor", cliui.DimStyle.Render(fmt.Sprintf("saved at %d records", n)))
	}
	fmt.Fprintln(out)
	return nil
}

// report prints a corruption finding and passes err through.
func report(cmd *cobra.Command, err error) error {
	var ce *audit.CorruptionError
	if errors.As(err, &ce) {
		fmt.Fprintf(cmd.ErrOrStderr(), "\n  %s corruption at sequence %d\n\n", cliui.FailMark, ce.Sequence)
	}
	return err
}
