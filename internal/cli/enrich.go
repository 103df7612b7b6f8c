package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/windregistry/masterdata/modules/registry/services"
)

func newEnrichCommand(rt *Runtime) *cobra.Command {
	var (
		gsrns  []string
		relink bool
		format string
	)
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Link turbines to their owning sites",
		Long: `enrich resolves the owning site of each turbine through the cadastral
services. Without --gsrn every turbine lacking a site is processed.`,
		Example: `  masterdata enrich
  masterdata enrich --gsrn 571234567890123456 --gsrn 571234567890123457 --relink`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, g := range gsrns {
				if !services.ValidGSRN(g) {
					return inputError(fmt.Errorf("invalid GSRN %q", g))
				}
			}
			if relink && len(gsrns) == 0 {
				return usageError(fmt.Errorf("--relink requires --gsrn"))
			}

			sess, err := rt.Open(cmd.Context(), OpenOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			enricher := sess.App.Service(services.EnrichmentService{}).(*services.EnrichmentService)
			var res services.EnrichmentResult
			if len(gsrns) == 0 {
				res, err = enricher.EnrichMissing(sess.Ctx)
			} else {
				res, err = enricher.EnrichGSRNs(sess.Ctx, gsrns, relink)
			}
			if err != nil {
				return dbError(err)
			}
			return writeOutput(cmd.OutOrStdout(), format, res)
		},
	}
	cmd.Flags().StringSliceVar(&gsrns, "gsrn", nil, "restrict the pass to these GSRNs (repeatable)")
	cmd.Flags().BoolVar(&relink, "relink", false, "resolve again turbines that already have a site")
	cmd.Flags().StringVarP(&format, "format", "o", "json", "output format: json or yaml")
	return cmd
}
