// Package trace inspects recorded capture runs.
package trace

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/camhal/internal/conf"
	"github.com/tphakala/camhal/internal/errors"
	"github.com/tphakala/camhal/internal/tracestore"
)

// Command creates the trace command and its list and show subcommands
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded capture runs",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := tracestore.Open(settings.Trace.Path)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			runs, err := store.Runs(limit)
			if err != nil {
				return err
			}
			WriteRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs, 0 lists all")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the callbacks of one run in emission order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := tracestore.Open(settings.Trace.Path)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			run, err := store.Run(args[0])
			if errors.IsNotFound(err) {
				return fmt.Errorf("no run %s in %s, see 'camhal trace list'", args[0], store.Path())
			}
			if err != nil {
				return err
			}
			events, err := store.Events(run.ID)
			if err != nil {
				return err
			}
			WriteEvents(cmd.OutOrStdout(), events)
			return nil
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

// WriteRuns prints one line per run
func WriteRuns(w io.Writer, runs []tracestore.Run) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RUN\tSCENARIO\tCAMERA\tSTARTED\tSUBMITTED\tSHUTTERS\tERRORS\tDROPPED")
	for i := range runs {
		r := &runs[i]
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.ID, r.Scenario, r.CameraID, r.StartedAt.Format(time.DateTime),
			r.Submitted, r.Shutters, r.BufferErrors+r.RequestErrors, r.Dropped)
	}
	_ = tw.Flush()
}

// WriteEvents prints one line per callback
func WriteEvents(w io.Writer, events []tracestore.Event) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SEQ\tKIND\tFRAME\tDETAIL")
	for i := range events {
		e := &events[i]
		var detail string
		switch e.Kind {
		case tracestore.KindShutter:
			detail = fmt.Sprintf("timestamp=%d", e.Timestamp)
		case tracestore.KindError:
			detail = "code=" + e.ErrorCode
			if e.StreamID != nil {
				detail += fmt.Sprintf(" stream=%d", *e.StreamID)
			}
		case tracestore.KindResult:
			detail = fmt.Sprintf("buffers=%d errors=%d metadata=%t", e.Buffers, e.BufferErrors, e.HasMetadata)
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", e.Seq, e.Kind, e.FrameNumber, detail)
	}
	_ = tw.Flush()
}
