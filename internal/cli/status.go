package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/hupe1980/libsync/internal/config"
	"github.com/hupe1980/libsync/internal/drift"
)

type statusOptions struct {
	diff     bool
	exitCode bool
}

func newStatusCommand() *cobra.Command {
	opts := &statusOptions{}

	cmd := &cobra.Command{
		Use:   "status [name...]",
		Short: "Show whether destinations match the current build output",
		Long: `Status compares the build output of each library with every destination
by content hash, without building or copying anything.

Each destination is reported as in sync, missing, or with counts of added
(+), changed (~), and removed (-) files. Use --diff to print a unified diff
of the file manifests.`,
		ValidArgsFunction: completeProjectNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.diff, "diff", false, "print a unified diff per drifted destination")
	f.BoolVar(&opts.exitCode, "exit-code", false, "exit with code 1 when any destination has drifted")

	return cmd
}

func runStatus(cmd *cobra.Command, names []string, opts *statusOptions) error {
	projects, err := loadProjects(cmd.Context(), names)
	if err != nil {
		return err
	}

	cfg := config.FromContext(cmd.Context())
	fsys := afero.NewOsFs()
	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(tw, "PROJECT\tDESTINATION\tSTATE")

	var (
		drifted int
		diffs   []drift.DestinationDrift
	)

	for _, p := range projects {
		results, err := drift.Check(fsys, p)
		if err != nil {
			drifted++

			_, _ = fmt.Fprintf(tw, "%s\t-\t%s\n", p.Name, err)

			continue
		}

		if len(results) == 0 {
			_, _ = fmt.Fprintf(tw, "%s\t-\tno destinations\n", p.Name)

			continue
		}

		for _, d := range results {
			if !d.InSync() {
				drifted++

				diffs = append(diffs, d)
			}

			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, d.Destination, d.Summary())
		}
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	if opts.diff {
		for _, d := range diffs {
			_, _ = fmt.Fprintln(out)
			drift.WriteDiff(out, d, !cfg.NoColor)
		}
	}

	if opts.exitCode && drifted > 0 {
		return &ExitError{Code: 1, Err: fmt.Errorf("%d destination(s) out of sync", drifted)}
	}

	return nil
}
