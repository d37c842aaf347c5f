package plant

import (
	"strconv"
	"strings"
)

// Category orders fragments: identity first, measurements last.
type Category int

const (
	CategoryIdentity Category = iota
	CategoryTaxonomy
	CategoryDescription
	CategoryMeasurement
)

// Field is one labelled attribute of a record. The set of implementations is
// closed: Identity, Taxonomy, Description and Measurement.
type Field interface {
	Label() string
	Category() Category
	// fragment renders the field, ok is false when the field is unset.
	fragment() (text string, ok bool)
}

// Identity names the plant. Several values (common names) are listed.
type Identity struct {
	Name   string
	Values []string
}

func (f Identity) Label() string      { return f.Name }
func (f Identity) Category() Category { return CategoryIdentity }
func (f Identity) fragment() (string, bool) {
	return labelled(f.Name, joinValues(f.Values))
}

// Taxonomy places the plant in a classification.
type Taxonomy struct {
	Name  string
	Value string
}

func (f Taxonomy) Label() string      { return f.Name }
func (f Taxonomy) Category() Category { return CategoryTaxonomy }
func (f Taxonomy) fragment() (string, bool) {
	return labelled(f.Name, strings.TrimSpace(f.Value))
}

// Description is free text or a list of short descriptive values.
type Description struct {
	Name   string
	Values []string
}

func (f Description) Label() string      { return f.Name }
func (f Description) Category() Category { return CategoryDescription }
func (f Description) fragment() (string, bool) {
	return labelled(f.Name, joinValues(f.Values))
}

// Measurement is a range with optional bounds, rendered "min-max unit" with
// "?" for a missing bound.
type Measurement struct {
	Name     string
	Unit     string
	Min, Max *float64
}

func (f Measurement) Label() string      { return f.Name }
func (f Measurement) Category() Category { return CategoryMeasurement }
func (f Measurement) fragment() (string, bool) {
	if f.Min == nil && f.Max == nil {
		return "", false
	}
	value := bound(f.Min) + "-" + bound(f.Max)
	if f.Unit != "" {
		value += " " + f.Unit
	}
	return labelled(f.Name, value)
}

const missingBound = "?"

func bound(v *float64) string {
	if v == nil {
		return missingBound
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func joinValues(values []string) string {
	kept := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			kept = append(kept, v)
		}
	}
	return strings.Join(kept, ", ")
}

func labelled(label, value string) (string, bool) {
	if value == "" {
		return "", false
	}
	return label + ": " + value, true
}
