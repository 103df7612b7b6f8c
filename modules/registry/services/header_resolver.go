package services

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

var ErrHeaderRowNotFound = errors.New("header row not found")

// Field identifies a canonical turbine column.
type Field string

const (
	FieldGSRN                   Field = "gsrn"
	FieldOriginalConnectionDate Field = "original_connection_date"
	FieldDecommissioningDate    Field = "decommissioning_date"
	FieldCapacityKW             Field = "capacity_kw"
	FieldRotorDiameterM         Field = "rotor_diameter_m"
	FieldHubHeightM             Field = "hub_height_m"
	FieldManufacturer           Field = "manufacturer"
	FieldTypeDesignation        Field = "type_designation"
	FieldLocalAuthority         Field = "local_authority"
	FieldLocationType           Field = "location_type"
	FieldCadastralDistrict      Field = "cadastral_district"
	FieldCadastralNo            Field = "cadastral_no"
	FieldCoordinateX            Field = "coordinate_x"
	FieldCoordinateY            Field = "coordinate_y"
	FieldCoordinateOrigin       Field = "coordinate_origin"
)

var fieldOrder = []Field{
	FieldGSRN, FieldOriginalConnectionDate, FieldDecommissioningDate,
	FieldCapacityKW, FieldRotorDiameterM, FieldHubHeightM,
	FieldManufacturer, FieldTypeDesignation, FieldLocalAuthority,
	FieldLocationType, FieldCadastralDistrict, FieldCadastralNo,
	FieldCoordinateX, FieldCoordinateY, FieldCoordinateOrigin,
}

var knownFields = func() map[Field]struct{} {
	m := make(map[Field]struct{}, len(fieldOrder))
	for _, f := range fieldOrder {
		m[f] = struct{}{}
	}
	return m
}()

// Fields lists every canonical field in record order.
func Fields() []Field {
	return append([]Field(nil), fieldOrder...)
}

//go:embed headers.yaml
var headersYAML []byte

// SynonymTable maps localized header labels to fields. It is immutable after
// loading.
type SynonymTable struct {
	anchors []string
	byLabel map[string]Field
	labels  []string
}

type synonymFile struct {
	Anchors []string           `yaml:"anchors"`
	Fields  map[Field][]string `yaml:"fields"`
}

func LoadSynonymTable(data []byte) (*SynonymTable, error) {
	var raw synonymFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse header synonyms: %w", err)
	}
	if len(raw.Anchors) == 0 {
		return nil, errors.New("header synonyms: at least one anchor is required")
	}
	if len(raw.Fields[FieldGSRN]) == 0 {
		return nil, errors.New("header synonyms: gsrn has no labels")
	}

	t := &SynonymTable{byLabel: make(map[string]Field)}
	for _, a := range raw.Anchors {
		t.anchors = append(t.anchors, normalizeHeader(a))
	}
	for field, labels := range raw.Fields {
		if _, ok := knownFields[field]; !ok {
			return nil, fmt.Errorf("header synonyms: unknown field %q", field)
		}
		for _, label := range labels {
			key := normalizeHeader(label)
			if key == "" {
				continue
			}
			if other, dup := t.byLabel[key]; dup && other != field {
				return nil, fmt.Errorf("header synonyms: label %q maps to both %s and %s", label, other, field)
			}
			t.byLabel[key] = field
			t.labels = append(t.labels, strings.Join(strings.Fields(label), " "))
		}
	}
	sort.Strings(t.labels)
	return t, nil
}

// DefaultSynonyms returns the embedded table, parsed on first use.
var DefaultSynonyms = sync.OnceValue(func() *SynonymTable {
	t, err := LoadSynonymTable(headersYAML)
	if err != nil {
		panic(err)
	}
	return t
})

// Match resolves a raw header cell by exact comparison after normalization.
func (t *SynonymTable) Match(header string) (Field, bool) {
	f, ok := t.byLabel[normalizeHeader(header)]
	return f, ok
}

// IsAnchor reports whether cell contains one of the anchor labels.
func (t *SynonymTable) IsAnchor(cell string) bool {
	c := normalizeHeader(cell)
	if c == "" {
		return false
	}
	for _, a := range t.anchors {
		if strings.Contains(c, a) {
			return true
		}
	}
	return false
}

// Labels lists every known label in display form.
func (t *SynonymTable) Labels() []string {
	out := make([]string, len(t.labels))
	copy(out, t.labels)
	return out
}

// normalizeHeader collapses whitespace, composes combining marks (NFC) and case
// folds, so "PÅ" typed as A plus a combining ring equals "på".
func normalizeHeader(s string) string {
	s = norm.NFC.String(strings.Join(strings.Fields(s), " "))
	return cases.Fold().String(s)
}

// Column is a zero-based column position; Absent when the header is missing.
type Column int

const Absent Column = -1

func (c Column) Present() bool { return c >= 0 }

// Cell returns the trimmed cell text of row at c, or "" when the column is
// absent or the row is shorter.
func (c Column) Cell(row []string) string {
	if c < 0 || int(c) >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[c])
}

// ColumnMap holds the resolved position of every canonical field.
type ColumnMap struct {
	GSRN                   Column
	OriginalConnectionDate Column
	DecommissioningDate    Column
	CapacityKW             Column
	RotorDiameterM         Column
	HubHeightM             Column
	Manufacturer           Column
	TypeDesignation        Column
	LocalAuthority         Column
	LocationType           Column
	CadastralDistrict      Column
	CadastralNo            Column
	CoordinateX            Column
	CoordinateY            Column
	CoordinateOrigin       Column
}

func emptyColumnMap() ColumnMap {
	return ColumnMap{
		GSRN: Absent, OriginalConnectionDate: Absent, DecommissioningDate: Absent,
		CapacityKW: Absent, RotorDiameterM: Absent, HubHeightM: Absent,
		Manufacturer: Absent, TypeDesignation: Absent, LocalAuthority: Absent,
		LocationType: Absent, CadastralDistrict: Absent, CadastralNo: Absent,
		CoordinateX: Absent, CoordinateY: Absent, CoordinateOrigin: Absent,
	}
}

// Column returns the position resolved for f, or Absent.
func (m ColumnMap) Column(f Field) Column {
	if slot := m.slot(f); slot != nil {
		return *slot
	}
	return Absent
}

// slot returns the ColumnMap entry for f.
func (m *ColumnMap) slot(f Field) *Column {
	switch f {
	case FieldGSRN:
		return &m.GSRN
	case FieldOriginalConnectionDate:
		return &m.OriginalConnectionDate
	case FieldDecommissioningDate:
		return &m.DecommissioningDate
	case FieldCapacityKW:
		return &m.CapacityKW
	case FieldRotorDiameterM:
		return &m.RotorDiameterM
	case FieldHubHeightM:
		return &m.HubHeightM
	case FieldManufacturer:
		return &m.Manufacturer
	case FieldTypeDesignation:
		return &m.TypeDesignation
	case FieldLocalAuthority:
		return &m.LocalAuthority
	case FieldLocationType:
		return &m.LocationType
	case FieldCadastralDistrict:
		return &m.CadastralDistrict
	case FieldCadastralNo:
		return &m.CadastralNo
	case FieldCoordinateX:
		return &m.CoordinateX
	case FieldCoordinateY:
		return &m.CoordinateY
	case FieldCoordinateOrigin:
		return &m.CoordinateOrigin
	}
	return nil
}

// Header is the outcome of header resolution.
type Header struct {
	// RowIndex is the zero-based index of the header row in the grid.
	RowIndex int
	Columns  ColumnMap
	// Raw holds the non-blank header text by column.
	Raw map[int]string
	// Unknown lists columns whose header matched no synonym.
	Unknown []int
}

type HeaderResolver struct {
	table    *SynonymTable
	scanRows int
}

func NewHeaderResolver(table *SynonymTable, scanRows int) *HeaderResolver {
	if table == nil {
		table = DefaultSynonyms()
	}
	if scanRows <= 0 {
		scanRows = 20
	}
	return &HeaderResolver{table: table, scanRows: scanRows}
}

func (r *HeaderResolver) Table() *SynonymTable {
	return r.table
}

// Resolve locates the header row within the first scanRows rows and maps its
// cells to fields. Unknown headers are recorded and otherwise ignored. When
// two columns resolve to the same field the leftmost wins.
func (r *HeaderResolver) Resolve(rows [][]string) (*Header, error) {
	idx := r.findHeaderRow(rows)
	if idx < 0 {
		return nil, ErrHeaderRowNotFound
	}

	h := &Header{RowIndex: idx, Columns: emptyColumnMap(), Raw: make(map[int]string)}
	for col, cell := range rows[idx] {
		if strings.TrimSpace(cell) == "" {
			continue
		}
		h.Raw[col] = cell
		field, ok := r.table.Match(cell)
		if !ok {
			h.Unknown = append(h.Unknown, col)
			continue
		}
		if slot := h.Columns.slot(field); slot != nil && !slot.Present() {
			*slot = Column(col)
		}
	}
	return h, nil
}

func (r *HeaderResolver) findHeaderRow(rows [][]string) int {
	limit := min(r.scanRows, len(rows))
	for i := 0; i < limit; i++ {
		for _, cell := range rows[i] {
			if r.table.IsAnchor(cell) {
				return i
			}
		}
	}
	return -1
}
