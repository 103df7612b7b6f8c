package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/windregistry/masterdata/modules/registry/services"
)

type importOutput struct {
	*services.ImportResult `yaml:",inline"`
	Enrichment             *services.EnrichmentResult `json:"enrichment,omitempty" yaml:"enrichment,omitempty"`
}

func newImportCommand(rt *Runtime) *cobra.Command {
	var (
		enrich bool
		dryRun bool
		format string
	)
	cmd := &cobra.Command{
		Use:   "import <file.xlsx>",
		Short: "Import a turbine register workbook",
		Example: `  masterdata import register.xlsx
  masterdata import register.xlsx --enrich
  masterdata import register.xlsx --dry-run`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if !strings.EqualFold(filepath.Ext(path), ".xlsx") {
				return inputError(fmt.Errorf("%s: file must be an Excel file (.xlsx)", path))
			}
			f, err := os.Open(path)
			if err != nil {
				return inputError(err)
			}
			defer func() { _ = f.Close() }()

			sess, err := rt.Open(cmd.Context(), OpenOptions{DryRun: dryRun})
			if err != nil {
				return err
			}
			defer sess.Close()

			importer := sess.App.Service(services.ImportService{}).(*services.ImportService)
			result, err := importer.Import(sess.Ctx, f)
			if errors.Is(err, services.ErrImportFatal) {
				_ = writeOutput(cmd.OutOrStdout(), format, importOutput{ImportResult: result})
				return inputError(err)
			}
			if err != nil {
				return dbError(err)
			}

			out := importOutput{ImportResult: result}
			if enrich {
				enricher := sess.App.Service(services.EnrichmentService{}).(*services.EnrichmentService)
				res, err := enricher.EnrichGSRNs(sess.Ctx, result.Touched(), false)
				if err != nil {
					return dbError(err)
				}
				out.Enrichment = &res
			}

			rt.Logger.WithFields(logrus.Fields{
				"file":     path,
				"imported": result.ImportedCount,
				"updated":  result.UpdatedCount,
				"errors":   len(result.Errors),
				"dry_run":  dryRun,
			}).Info("import finished")
			return writeOutput(cmd.OutOrStdout(), format, out)
		},
	}
	cmd.Flags().BoolVar(&enrich, "enrich", false, "link imported turbines to their owning sites")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "import into an in-memory store and discard it")
	cmd.Flags().StringVarP(&format, "format", "o", "json", "output format: json or yaml")
	return cmd
}
