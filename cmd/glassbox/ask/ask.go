// Package askcmder provides the ask command for one-shot generation.
package askcmder

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/glassbox/cmd/glassbox/boot"
	"github.com/papercomputeco/glassbox/pkg/cliui"
	"github.com/papercomputeco/glassbox/pkg/engine"
	"github.com/papercomputeco/glassbox/pkg/utils"
)

type askCommander struct {
	noLog       bool
	showContext bool
	raw         bool
}

const askLongDesc string = `Answer a single prompt and record it in the audit log.

The prompt is answered from the chunks retrieved out of the vector store.
The prompt and response are then appended to the audit log and the new
root hash is printed. Use --no-log to answer without recording.

Examples:
  glassbox ask "what is the retention policy?"
  glassbox ask --show-context --model ./model.bin "2+2="
  glassbox ask --no-log "draft a reply"`

const askShortDesc string = "Answer a prompt and record it"

func NewAskCmd() *cobra.Command {
	cmder := &askCommander{}

	cmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: askShortDesc,
		Long:  askLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, strings.Join(args, " "))
		},
	}

	boot.AddFlags(cmd)
	cmd.Flags().BoolVar(&cmder.noLog, "no-log", false, "Do not record the interaction in the audit log")
	cmd.Flags().BoolVar(&cmder.showContext, "show-context", false, "Print the retrieved chunks")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print the response without markdown rendering")

	return cmd
}

func (c *askCommander) run(cmd *cobra.Command, prompt string) (err error) {
	ctx := cmd.Context()

	rt, err := boot.Open(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, rt.Close())
	}()

	gen, err := rt.Session.Generation(ctx, prompt)
	if err != nil {
		return fmt.Errorf("generating: %w", err)
	}

	out := cmd.OutOrStdout()
	if c.showContext {
		printContext(out, gen)
	}
	c.printResponse(out, rt.Logger, gen.Response)

	cliui.KV(out, "tokens", fmt.Sprintf("%d in, %d out (%s)", gen.Decode.InputTokens, len(gen.Decode.Tokens), gen.Decode.Reason))

	if c.noLog {
		fmt.Fprintf(out, "  %s\n\n", cliui.DimStyle.Render("Not recorded."))
		return nil
	}

	root, err := rt.Session.LogInteraction(ctx, prompt, gen.Response)
	if err != nil {
		return fmt.Errorf("recording interaction: %w", err)
	}
	cliui.KV(out, "root", cliui.Hash(root, 0))
	fmt.Fprintln(out)
	return nil
}

func (c *askCommander) printResponse(w io.Writer, log *zap.Logger, response string) {
	fmt.Fprintln(w)
	if c.raw {
		fmt.Fprintf(w, "%s\n\n", response)
		return
	}

	rendered, err := cliui.RenderMarkdown(response)
	if err != nil {
		log.Debug("rendering markdown", zap.Error(err))
	}
	fmt.Fprintln(w, rendered)
}

func printContext(w io.Writer, gen *engine.Generation) {
	fmt.Fprintf(w, "\n  %s %s\n",
		cliui.KeyStyle.Render("Context:"),
		cliui.DimStyle.Render(fmt.Sprintf("%d chunks, %d tokens, %d dropped", len(gen.Context.Chunks), gen.Context.Tokens, gen.Context.Dropped)),
	)
	for _, c := range gen.Context.Chunks {
		fmt.Fprintf(w, "    %s %s %s\n",
			cliui.Hash(string(c.ID), 12),
			cliui.DimStyle.Render(fmt.Sprintf("%.4f", c.Distance)),
			utils.Truncate(c.Text, 60),
		)
	}
}
