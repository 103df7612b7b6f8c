package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"github.com/windregistry/masterdata/modules/registry/services"
)

type inspectReport struct {
	Sheet     string           `json:"sheet" yaml:"sheet"`
	HeaderRow int              `json:"headerRow" yaml:"headerRow"`
	Columns   []resolvedColumn `json:"columns" yaml:"columns"`
	Missing   []string         `json:"missing" yaml:"missing"`
	Unknown   []unknownHeader  `json:"unknown" yaml:"unknown"`
}

type resolvedColumn struct {
	Field  string `json:"field" yaml:"field"`
	Column string `json:"column" yaml:"column"`
	Header string `json:"header" yaml:"header"`
}

type unknownHeader struct {
	Column     string `json:"column" yaml:"column"`
	Header     string `json:"header" yaml:"header"`
	Suggestion string `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
}

func newInspectCommand(rt *Runtime) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "inspect <file.xlsx>",
		Short: "Show how a workbook's header row is understood",
		Long: `inspect locates the header row of the first worksheet and prints the
column resolved for each field. Headers matching no known label are listed
with the closest known label, if any.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := inspectWorkbook(args[0], rt.Conf.Import.HeaderScanRows)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), format, report)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "o", "yaml", "output format: json or yaml")
	return cmd
}

func inspectWorkbook(path string, scanRows int) (*inspectReport, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, inputError(err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, inputError(services.ErrNoWorksheet)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, inputError(err)
	}

	resolver := services.NewHeaderResolver(services.DefaultSynonyms(), scanRows)
	header, err := resolver.Resolve(rows)
	if errors.Is(err, services.ErrHeaderRowNotFound) {
		return nil, inputError(fmt.Errorf("%s: no header row within the first %d rows", path, scanRows))
	}
	if err != nil {
		return nil, inputError(err)
	}
	return buildReport(sheet, header, resolver.Table().Labels()), nil
}

func buildReport(sheet string, header *services.Header, labels []string) *inspectReport {
	report := &inspectReport{
		Sheet:     sheet,
		HeaderRow: header.RowIndex + 1,
		Columns:   []resolvedColumn{},
		Missing:   []string{},
		Unknown:   []unknownHeader{},
	}
	for _, field := range services.Fields() {
		col := header.Columns.Column(field)
		if !col.Present() {
			report.Missing = append(report.Missing, string(field))
			continue
		}
		report.Columns = append(report.Columns, resolvedColumn{
			Field:  string(field),
			Column: columnName(int(col)),
			Header: header.Raw[int(col)],
		})
	}
	for _, col := range header.Unknown {
		report.Unknown = append(report.Unknown, unknownHeader{
			Column:     columnName(col),
			Header:     header.Raw[col],
			Suggestion: closestLabel(header.Raw[col], labels),
		})
	}
	return report
}

// closestLabel returns the known label that fuzzily contains header with the
// smallest edit distance, or "" when none does.
func closestLabel(header string, labels []string) string {
	ranks := fuzzy.RankFindNormalizedFold(header, labels)
	if len(ranks) == 0 {
		return ""
	}
	sort.Sort(ranks)
	return ranks[0].Target
}

func columnName(col int) string {
	name, err := excelize.ColumnNumberToName(col + 1)
	if err != nil {
		return fmt.Sprintf("#%d", col+1)
	}
	return name
}
