package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewRootCommand builds the masterdata command tree.
func NewRootCommand(rt *Runtime) *cobra.Command {
	root := &cobra.Command{
		Use:   "masterdata",
		Short: "Wind turbine master data tooling",
		Long: `masterdata imports the national wind turbine register into the master
data store, links turbines to their owning sites and manages the schema.`,
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(rt.Out)
	root.SetErr(rt.Err)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	root.AddCommand(
		newImportCommand(rt),
		newEnrichCommand(rt),
		newInspectCommand(rt),
		newMigrateCommand(rt),
	)
	return root
}

// Execute runs args and returns the process exit code.
func Execute(ctx context.Context, rt *Runtime, args []string) int {
	root := NewRootCommand(rt)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		_, _ = fmt.Fprintln(rt.Err, "Error:", err)
	}
	return ExitCode(err)
}

func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return usageError(fmt.Errorf("unknown output format %q (expected json or yaml)", format))
	}
}
