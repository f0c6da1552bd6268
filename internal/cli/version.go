package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/hupe1980/libsync/internal/version"
)

type versionOptions struct {
	short  bool
	json   bool
	output string
}

func newVersionCommand() *cobra.Command {
	opts := &versionOptions{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print the libsync version together with the commit and build date it was
built from. Release builds get these from -ldflags; go install builds read
them from the embedded module and VCS information.`,
		Args:              cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVersion(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.short, "short", false, "print only the version number")
	f.BoolVar(&opts.json, "json", false, "shorthand for --output json")
	f.StringVarP(&opts.output, "output", "o", "text", "output format: text, json, yaml")
	cmd.MarkFlagsMutuallyExclusive("short", "json", "output")

	return cmd
}

func runVersion(cmd *cobra.Command, opts *versionOptions) error {
	info := version.GetInfo()
	w := cmd.OutOrStdout()

	if opts.short {
		_, err := fmt.Fprintln(w, info.Version)
		return err
	}

	format := strings.ToLower(opts.output)
	if opts.json {
		format = "json"
	}

	switch format {
	case "", "text":
		_, err := fmt.Fprintln(w, info.String())
		return err
	case "json":
		j, err := info.JSON()
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(w, j)

		return err
	case "yaml":
		data, err := yaml.Marshal(info)
		if err != nil {
			return err
		}

		_, err = w.Write(data)

		return err
	default:
		return &ExitError{Code: 2, Err: fmt.Errorf("unsupported output format %q: use text, json, or yaml", opts.output)}
	}
}
