// Package chatcmder provides the chat command, an interactive loop that
// answers and records every prompt.
package chatcmder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/glassbox/cmd/glassbox/boot"
	"github.com/papercomputeco/glassbox/pkg/cliui"
	"github.com/papercomputeco/glassbox/pkg/session"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("glassbox> ")
)

type chatCommander struct {
	noLog bool
}

const chatLongDesc string = `Start an interactive session.

Every line is answered from the vector store and appended to the audit
log. The root hash after each exchange is printed next to the response.

Commands:
  /root     Print the current root hash
  /verify   Replay the audit log
  /exit     Quit (Ctrl+D works too)

Examples:
  glassbox chat
  glassbox chat --model ./model.bin --no-log`

const chatShortDesc string = "Interactive session with a recorded transcript"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	boot.AddFlags(cmd)
	cmd.Flags().BoolVar(&cmder.noLog, "no-log", false, "Do not record interactions in the audit log")

	return cmd
}

func (c *chatCommander) run(cmd *cobra.Command) (err error) {
	ctx := cmd.Context()

	rt, err := boot.Open(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, rt.Close())
	}()

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	chunks, err := rt.Session.Chunks()
	if err != nil {
		return err
	}
	log, err := rt.Session.Audit()
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	cliui.KV(out, "chunks", fmt.Sprintf("%d", chunks))
	cliui.KV(out, "records", fmt.Sprintf("%d", log.Len()))
	fmt.Fprintf(out, "\n  %s\n\n", cliui.DimStyle.Render("Type a prompt and press Enter. /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, userPrompt)
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit":
			fmt.Fprintln(out)
			return scanner.Err()
		case "/root":
			c.printRoot(out, errOut, rt.Session)
			continue
		case "/verify":
			c.verify(cmd, out, errOut, rt.Session)
			continue
		}

		response, err := rt.Session.Generate(ctx, input)
		if err != nil {
			fmt.Fprintf(errOut, "  %s %v\n", cliui.FailMark, err)
			continue
		}
		fmt.Fprintf(out, "%s%s\n", assistantPrompt, response)

		if c.noLog {
			continue
		}
		root, err := rt.Session.LogInteraction(ctx, input, response)
		if err != nil {
			fmt.Fprintf(errOut, "  %s recording: %v\n", cliui.FailMark, err)
			continue
		}
		fmt.Fprintf(out, "  %s\n", cliui.DimStyle.Render("root "+cliui.Hash(root, 16)))
	}

	fmt.Fprintln(out)
	return scanner.Err()
}

func (c *chatCommander) printRoot(out, errOut io.Writer, s *session.Session) {
	log, err := s.Audit()
	if err != nil {
		fmt.Fprintf(errOut, "  %s %v\n", cliui.FailMark, err)
		return
	}
	root, err := log.RootHash()
	if err != nil {
		fmt.Fprintf(errOut, "  %s %v\n", cliui.FailMark, err)
		return
	}
	cliui.KV(out, "root", cliui.Hash(root, 0))
	cliui.KV(out, "records", fmt.Sprintf("%d", log.Len()))
}

func (c *chatCommander) verify(cmd *cobra.Command, out, errOut io.Writer, s *session.Session) {
	log, err := s.Audit()
	if err != nil {
		fmt.Fprintf(errOut, "  %s %v\n", cliui.FailMark, err)
		return
	}
	if err := s.VerifyAudit(cmd.Context(), 0, log.Len()); err != nil {
		fmt.Fprintf(errOut, "  %s %v\n", cliui.FailMark, err)
		return
	}
	fmt.Fprintf(out, "  %s %d records verified\n", cliui.SuccessMark, log.Len())
}
