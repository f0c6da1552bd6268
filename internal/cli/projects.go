package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/libsync/internal/config"
	"github.com/hupe1980/libsync/internal/logging"
	"github.com/hupe1980/libsync/internal/project"
)

func newProjectsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"project", "libs"},
		Short:   "List, add, or remove configured libraries",
		Long: `Maintain the projects file that lists every library libsync manages.

The file holds a single "libraries" array. It may be written in JSON or
YAML; the extension decides the format used when saving.`,
		Args: cobra.NoArgs,
	}

	cmd.AddCommand(
		newProjectsListCommand(),
		newProjectsAddCommand(),
		newProjectsRemoveCommand(),
	)

	return cmd
}

// ---------------------------------------------------------------------------
// list
// ---------------------------------------------------------------------------

func newProjectsListCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List configured libraries",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())

			projects, err := project.NewStore(cfg.ProjectsFile).Load()
			if err != nil {
				return err
			}

			switch strings.ToLower(output) {
			case "", "table":
				return writeProjectTable(cmd, projects)
			case project.FormatJSON, project.FormatYAML:
				data, err := project.Encode(projects, strings.ToLower(output))
				if err != nil {
					return err
				}

				_, err = cmd.OutOrStdout().Write(data)

				return err
			default:
				return &ExitError{Code: 2, Err: fmt.Errorf("unsupported output format %q: use table, json, or yaml", output)}
			}
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json, yaml")

	return cmd
}

func writeProjectTable(cmd *cobra.Command, projects project.Projects) error {
	w := cmd.OutOrStdout()

	if len(projects) == 0 {
		_, err := fmt.Fprintln(w, "No projects configured.")

		return err
	}

	for _, p := range projects {
		_, _ = fmt.Fprintf(w, "%s\n", p.Name)
		_, _ = fmt.Fprintf(w, "  src:          %s\n", p.Src)
		_, _ = fmt.Fprintf(w, "  build:        %s\n", p.BuildCommand)
		_, _ = fmt.Fprintf(w, "  output:       %s\n", p.BuildOutput)

		if len(p.Destinations) == 0 {
			_, _ = fmt.Fprintf(w, "  destinations: (none, build only)\n")
		}

		for i, d := range p.Destinations {
			label := "destinations:"
			if i > 0 {
				label = ""
			}

			_, _ = fmt.Fprintf(w, "  %-13s %s\n", label, d)
		}
	}

	return nil
}

// ---------------------------------------------------------------------------
// add
// ---------------------------------------------------------------------------

type projectsAddOptions struct {
	name         string
	src          string
	buildCommand string
	buildOutput  string
	destinations []string
	requires     []string
	ignore       []string
	replace      bool
}

func newProjectsAddCommand() *cobra.Command {
	opts := &projectsAddOptions{}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a library to the projects file",
		Example: `  libsync projects add --name ui-kit --src ../ui-kit \
    --build-command "npm run build" --build-output ../ui-kit/dist \
    --dest ../web/node_modules/ui-kit --dest ../admin/node_modules/ui-kit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProjectsAdd(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.name, "name", "", "library name (required)")
	f.StringVar(&opts.src, "src", "", "source directory to watch (required)")
	f.StringVar(&opts.buildCommand, "build-command", "", "shell command that builds the library (required)")
	f.StringVar(&opts.buildOutput, "build-output", "", "directory produced by the build (required)")
	f.StringArrayVar(&opts.destinations, "dest", nil, "destination directory (repeatable)")
	f.StringArrayVar(&opts.requires, "requires", nil, "tool version constraint as tool=constraint (repeatable)")
	f.StringArrayVar(&opts.ignore, "ignore", nil, "glob of source files that never trigger a build (repeatable)")
	f.BoolVar(&opts.replace, "replace", false, "replace an existing library with the same name")

	for _, name := range []string{"name", "src", "build-command", "build-output"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func runProjectsAdd(cmd *cobra.Command, opts *projectsAddOptions) error {
	requires, err := parseRequires(opts.requires)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	p := project.Project{
		Name:         opts.name,
		Src:          absPath(opts.src),
		BuildCommand: opts.buildCommand,
		BuildOutput:  absPath(opts.buildOutput),
		Requires:     requires,
		Ignore:       opts.ignore,
	}

	for _, d := range opts.destinations {
		p.Destinations = append(p.Destinations, absPath(d))
	}

	if err := p.Validate(); err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	cfg := config.FromContext(cmd.Context())
	store := project.NewStore(cfg.ProjectsFile)

	projects, err := store.LoadRaw()
	if err != nil {
		return err
	}

	if _, err := projects.Find(p.Name); err == nil && !opts.replace {
		return &ExitError{Code: 2, Err: fmt.Errorf("%w %q: use --replace to overwrite", project.ErrDuplicate, p.Name)}
	}

	if err := store.Save(projects.Upsert(p)); err != nil {
		return err
	}

	logging.FromContext(cmd.Context()).Debug("project saved", "project", p.Name, "file", store.Path())

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Saved %s to %s\n", p.Name, store.Path())

	return err
}

// parseRequires turns "tool=constraint" pairs into a map.
func parseRequires(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	out := make(map[string]string, len(pairs))

	for _, pair := range pairs {
		tool, constraint, ok := strings.Cut(pair, "=")
		tool = strings.TrimSpace(tool)
		constraint = strings.TrimSpace(constraint)

		if !ok || tool == "" || constraint == "" {
			return nil, fmt.Errorf("invalid --requires %q: expected tool=constraint", pair)
		}

		out[tool] = constraint
	}

	return out, nil
}

func absPath(path string) string {
	if path == "" {
		return ""
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}

	return abs
}

// ---------------------------------------------------------------------------
// remove
// ---------------------------------------------------------------------------

func newProjectsRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a library from the projects file",
		Args:    cobra.ExactArgs(1),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}

			return completeProjectNames(cmd, args, toComplete)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
			store := project.NewStore(cfg.ProjectsFile)

			projects, err := store.LoadRaw()
			if err != nil {
				return err
			}

			remaining, err := projects.Remove(args[0])
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			if err := store.Save(remaining); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s\n", args[0], store.Path())

			return err
		},
	}
}
