// Package ingestcmder provides the ingest command for loading documents
// into the vector store.
package ingestcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/glassbox/cmd/glassbox/boot"
	"github.com/papercomputeco/glassbox/pkg/cliui"
	"github.com/papercomputeco/glassbox/pkg/config"
	"github.com/papercomputeco/glassbox/pkg/ingest"
)

type ingestCommander struct {
	watch bool
}

const ingestLongDesc string = `Chunk files and insert them into the vector store.

Directories are walked recursively for files matching ingest.extensions.
Files named explicitly are always ingested. Chunks already in the store
are skipped, so running ingest twice over the same files is a no-op.

With --watch the command keeps running and re-ingests files in the given
directories as they are created or modified.

Examples:
  glassbox ingest ./docs
  glassbox ingest notes.md handbook.txt
  glassbox ingest --watch --workers 8 ./docs`

const ingestShortDesc string = "Load documents into the vector store"

func NewIngestCmd() *cobra.Command {
	cmder := &ingestCommander{}

	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: ingestShortDesc,
		Long:  ingestLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args)
		},
	}

	boot.AddFlags(cmd)
	config.AddUintFlag(cmd, config.Flags, config.FlagWorkers, new(uint))
	cmd.Flags().BoolVar(&cmder.watch, "watch", false, "Keep running and re-ingest changed files")

	return cmd
}

func (c *ingestCommander) run(cmd *cobra.Command, paths []string) (err error) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := boot.Open(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, rt.Close())
	}()

	out := cmd.OutOrStdout()

	var report *ingest.Report
	err = cliui.Step(cmd.ErrOrStderr(), "Ingesting", func() error {
		var err error
		report, err = rt.Session.IngestPaths(ctx, paths...)
		return err
	})
	if err != nil {
		return err
	}
	if err := rt.Session.Persist(ctx); err != nil {
		return fmt.Errorf("persisting vector store: %w", err)
	}
	printReport(out, report)

	if !c.watch {
		return nil
	}
	return c.runWatch(ctx, cmd, rt, paths)
}

func (c *ingestCommander) runWatch(ctx context.Context, cmd *cobra.Command, rt *boot.Runtime, paths []string) error {
	var dirs []string
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			dirs = append(dirs, p)
		}
	}
	if len(dirs) == 0 {
		return errors.New("--watch needs at least one directory")
	}

	ing, err := rt.Session.Ingester()
	if err != nil {
		return err
	}
	w, err := ingest.NewWatcher(ing, dirs...)
	if err != nil {
		return err
	}
	defer w.Close()

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	w.OnIngest = func(path string, report *ingest.Report, err error) {
		if err != nil {
			fmt.Fprintf(errOut, "  %s %s: %v\n", cliui.FailMark, path, err)
			return
		}
		if err := rt.Session.Persist(ctx); err != nil {
			fmt.Fprintf(errOut, "  %s persisting: %v\n", cliui.FailMark, err)
			return
		}
		fmt.Fprintf(out, "  %s %s %s\n", cliui.SuccessMark, path,
			cliui.DimStyle.Render(fmt.Sprintf("(%d chunks, %d new)", report.Chunks, report.Inserted)))
	}

	fmt.Fprintf(out, "\n  %s\n\n", cliui.DimStyle.Render("Watching for changes. Ctrl+C to stop."))
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func printReport(w io.Writer, r *ingest.Report) {
	fmt.Fprintln(w)
	cliui.KV(w, "files", fmt.Sprintf("%d", r.Files))
	cliui.KV(w, "chunks", fmt.Sprintf("%d", r.Chunks))
	cliui.KV(w, "inserted", fmt.Sprintf("%d", r.Inserted))
	fmt.Fprintln(w)
}
