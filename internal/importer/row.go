// Package importer reconciles spreadsheet rows against the existing outlet
// collection. Parsing is the only I/O step; Reconcile itself is pure.
package importer

import (
	"sort"
	"strings"
)

// Field is a logical column of the import layout.
type Field string

const (
	FieldName        Field = "name"
	FieldBrand       Field = "brand"
	FieldCity        Field = "city"
	FieldStage       Field = "stage"
	FieldStatus      Field = "status"
	FieldLiveDate    Field = "live_date"
	FieldDescription Field = "description"
)

// Column aliases in lookup order. Existing templates depend on these names.
var aliases = map[Field][]string{
	FieldName:        {"Outlet Name", "Name", "brand", "Brand"},
	FieldBrand:       {"Brand", "brand"},
	FieldCity:        {"Cities", "cities", "City", "city"},
	FieldStage:       {"Pipeline Stage", "status", "Status"},
	FieldStatus:      {"Outlet Status", "outlet status", "Operational Status"},
	FieldLiveDate:    {"live date", "Live Date"},
	FieldDescription: {"Description", "description"},
}

// Aliases returns the header names accepted for f, in lookup order.
func Aliases(f Field) []string {
	return append([]string(nil), aliases[f]...)
}

// Row is one spreadsheet data row keyed by header text. Number is the
// 1-based sheet line the row came from.
type Row struct {
	Number int               `json:"row"`
	Values map[string]string `json:"values"`
}

// Get returns the raw text of the first alias of f holding a non-blank value.
// Each alias is tried as an exact header first, then ignoring case and
// surrounding whitespace.
func (r Row) Get(f Field) (string, bool) {
	for _, alias := range aliases[f] {
		if v, ok := r.Values[alias]; ok && strings.TrimSpace(v) != "" {
			return v, true
		}
		if v, ok := r.lookupFold(alias); ok {
			return v, true
		}
	}
	return "", false
}

func (r Row) lookupFold(alias string) (string, bool) {
	keys := make([]string, 0, len(r.Values))
	for k := range r.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !strings.EqualFold(strings.TrimSpace(k), alias) {
			continue
		}
		if v := r.Values[k]; strings.TrimSpace(v) != "" {
			return v, true
		}
	}
	return "", false
}

// Blank reports whether every cell of the row is empty.
func (r Row) Blank() bool {
	for _, v := range r.Values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
