package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hupe1980/libsync/internal/config"
	"github.com/hupe1980/libsync/internal/project"
	"github.com/hupe1980/libsync/internal/toolchain"
)

// baselineTools are always probed.
var baselineTools = []string{"node", "npm"}

// newProber is replaced in tests.
var newProber = func() *toolchain.Prober { return toolchain.NewProber(nil) }

func newDoctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check tool versions against project requirements",
		Long: `Doctor reports the versions of node and npm found on PATH and checks the
"requires" constraints of every configured library, for example
{"node": ">=18"}. It exits with code 1 when a requirement is not met.`,
		Args: cobra.NoArgs,
		RunE: runDoctor,
	}
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)

	projects, err := project.NewStore(cfg.ProjectsFile).Load()
	if err != nil {
		return err
	}

	prober := newProber()
	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(tw, "TOOL\tVERSION")

	for _, name := range baselineTools {
		t := prober.Probe(ctx, name)

		version := "not found"
		if t.Found() {
			version = t.Version.String()
		}

		_, _ = fmt.Fprintf(tw, "%s\t%s\n", name, version)
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	unmet := 0

	for _, p := range projects {
		if len(p.Requires) == 0 {
			continue
		}

		_, _ = fmt.Fprintf(out, "\n%s\n", p.Name)

		for _, req := range prober.Check(ctx, p.Requires) {
			state := "ok"

			switch {
			case req.Err != nil:
				state = "error: " + req.Err.Error()
			case !req.Satisfied:
				state = fmt.Sprintf("found %s", req.Tool.Version)
			}

			if req.Err != nil || !req.Satisfied {
				unmet++
			}

			_, _ = fmt.Fprintf(out, "  %s %s: %s\n", req.Tool.Name, req.Constraint, state)
		}
	}

	if unmet > 0 {
		return &ExitError{Code: 1, Err: fmt.Errorf("%d requirement(s) not met", unmet)}
	}

	return nil
}
