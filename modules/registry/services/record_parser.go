package services

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/windregistry/masterdata/modules/registry/domain/aggregates/turbine"
)

// dateLayouts are tried in order. Typed dates are day-first since the registry
// is published with Danish formatting, whatever the zero-padding.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"2.1.2006",
	"02/01/2006",
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
	"01-02-06", // excelize renders built-in date format 14 as mm-dd-yy
	"2/1/06",
	"2/1/2006",
	"2/1/2006 15:04",
	"02/01/2006 15:04:05",
}

// ParsedRecord is a turbine candidate built from one data row.
type ParsedRecord struct {
	GSRN       string
	Attributes turbine.Attributes
}

// RecordParser converts data rows into typed turbine attributes using the
// column positions resolved from the header row.
type RecordParser struct {
	columns ColumnMap
}

func NewRecordParser(columns ColumnMap) *RecordParser {
	return &RecordParser{columns: columns}
}

// Parse returns false when the row has no valid GSRN. Such rows are skipped,
// not reported. Attribute cells never fail: unparsable values become absent.
func (p *RecordParser) Parse(row []string) (ParsedRecord, bool) {
	c := p.columns
	gsrn := c.GSRN.Cell(row)
	if !ValidGSRN(gsrn) {
		return ParsedRecord{}, false
	}
	return ParsedRecord{
		GSRN: gsrn,
		Attributes: turbine.Attributes{
			OriginalConnectionDate: ParseDate(c.OriginalConnectionDate.Cell(row)),
			DecommissioningDate:    ParseDate(c.DecommissioningDate.Cell(row)),
			CapacityKW:             ParseInt(c.CapacityKW.Cell(row)),
			RotorDiameterM:         ParseDecimal(c.RotorDiameterM.Cell(row)),
			HubHeightM:             ParseDecimal(c.HubHeightM.Cell(row)),
			Manufacturer:           ParseText(c.Manufacturer.Cell(row)),
			TypeDesignation:        ParseText(c.TypeDesignation.Cell(row)),
			LocalAuthority:         ParseText(c.LocalAuthority.Cell(row)),
			LocationType:           ParseText(c.LocationType.Cell(row)),
			CadastralDistrict:      ParseText(c.CadastralDistrict.Cell(row)),
			CadastralNo:            ParseText(c.CadastralNo.Cell(row)),
			CoordinateX:            ParseDecimal(c.CoordinateX.Cell(row)),
			CoordinateY:            ParseDecimal(c.CoordinateY.Cell(row)),
			CoordinateOrigin:       ParseText(c.CoordinateOrigin.Cell(row)),
		},
	}, true
}

// ValidGSRN reports whether s is a non-empty string of ASCII digits.
func ValidGSRN(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ParseDate accepts the layouts in dateLayouts and Excel serial day numbers.
// The result is in UTC.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// ParseInt drops every character except digits and a leading minus sign
// before parsing, so "2.000 kW" yields 2000.
func ParseInt(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' && i == 0:
			b.WriteRune(r)
		}
	}
	n, err := strconv.ParseInt(b.String(), 10, 32)
	if err != nil {
		return nil
	}
	v := int(n)
	return &v
}

// ParseDecimal treats comma as the decimal separator. When a comma is present
// any periods are thousands separators: "1.234,56" and "1234,56" both yield
// 1234.56.
// A period after the last comma is ambiguous and yields nil.
func ParseDecimal(s string) *decimal.Decimal {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return nil
	}
	if comma := strings.LastIndex(s, ","); comma >= 0 {
		if strings.Contains(s[comma:], ".") {
			return nil
		}
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

func ParseText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
