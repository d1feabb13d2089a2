package auditcmder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/glassbox/cmd/glassbox/boot"
	"github.com/papercomputeco/glassbox/pkg/audit"
	"github.com/papercomputeco/glassbox/pkg/cliui"
	"github.com/papercomputeco/glassbox/pkg/utils"
)

type showCommander struct {
	from   uint64
	to     uint64
	asJSON bool
}

const showLongDesc string = `Print audit records.

With a sequence argument prints that record. Otherwise prints the range
[--from, --to). Every record is checked against the chain as it is read.

Examples:
  glassbox audit show 3
  glassbox audit show --from 10 --to 20
  glassbox audit show --json > records.jsonl`

const showShortDesc string = "Print audit records"

func newShowCmd() *cobra.Command {
	cmder := &showCommander{}

	cmd := &cobra.Command{
		Use:   "show [seq]",
		Short: showShortDesc,
		Long:  showLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args)
		},
	}

	boot.AddAuditFlags(cmd)
	cmd.Flags().Uint64Var(&cmder.from, "from", 0, "First sequence to print")
	cmd.Flags().Uint64Var(&cmder.to, "to", 0, "Sequence to stop before (default: log length)")
	cmd.Flags().BoolVar(&cmder.asJSON, "json", false, "Print one JSON record per line")

	return cmd
}

func (c *showCommander) run(cmd *cobra.Command, args []string) (err error) {
	from, to := c.from, c.to

	rt, err := boot.OpenAudit(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, rt.Close())
	}()

	if !cmd.Flags().Changed("to") {
		to = rt.Log.Len()
	}
	if len(args) == 1 {
		seq, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid sequence %q: %w", args[0], err)
		}
		from, to = seq, seq+1
	}

	records, err := rt.Log.Records(cmd.Context(), from, to)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if c.asJSON {
		enc := json.NewEncoder(out)
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}

	for _, r := range records {
		printRecord(out, r)
	}
	return nil
}

func printRecord(w io.Writer, r *audit.Record) {
	fmt.Fprintf(w, "\n  %s %s\n",
		cliui.KeyStyle.Render(fmt.Sprintf("#%d", r.Sequence)),
		cliui.DimStyle.Render(r.Timestamp.Format("2006-01-02 15:04:05.000 MST")),
	)
	cliui.KV(w, "prompt", utils.Truncate(r.Prompt, 72))
	cliui.KV(w, "response", utils.Truncate(r.Response, 72))
	cliui.KV(w, "prev", cliui.Hash(r.PrevHash, 16))
	cliui.KV(w, "hash", cliui.Hash(r.RecordHash, 0))
	cliui.KV(w, "seal", cliui.Hash(r.Seal, 16))
}
