// Package plant describes plant encyclopedia records and splits them into
// independently embeddable fragments.
package plant

import (
	"strings"

	"github.com/google/uuid"
)

// sourceNamespace derives stable source ids for records without an id, so
// re-ingesting the same plant replaces its fragments.
var sourceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://greenthumb.app/plants"))

type Record struct {
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	Name           string   `json:"name,omitempty" yaml:"name,omitempty"`
	ScientificName string   `json:"scientific_name,omitempty" yaml:"scientific_name,omitempty"`
	CommonNames    []string `json:"common_names,omitempty" yaml:"common_names,omitempty"`

	Family   string `json:"family,omitempty" yaml:"family,omitempty"`
	Genus    string `json:"genus,omitempty" yaml:"genus,omitempty"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`

	Description    string   `json:"description,omitempty" yaml:"description,omitempty"`
	Sunlight       []string `json:"sunlight,omitempty" yaml:"sunlight,omitempty"`
	Watering       string   `json:"watering,omitempty" yaml:"watering,omitempty"`
	Soil           []string `json:"soil,omitempty" yaml:"soil,omitempty"`
	GrowthRate     string   `json:"growth_rate,omitempty" yaml:"growth_rate,omitempty"`
	HardinessZones []string `json:"hardiness_zones,omitempty" yaml:"hardiness_zones,omitempty"`
	Toxicity       string   `json:"toxicity,omitempty" yaml:"toxicity,omitempty"`
	CareNotes      string   `json:"care_notes,omitempty" yaml:"care_notes,omitempty"`

	HeightMin      *float64 `json:"height_min,omitempty" yaml:"height_min,omitempty"`
	HeightMax      *float64 `json:"height_max,omitempty" yaml:"height_max,omitempty"`
	SpreadMin      *float64 `json:"spread_min,omitempty" yaml:"spread_min,omitempty"`
	SpreadMax      *float64 `json:"spread_max,omitempty" yaml:"spread_max,omitempty"`
	TemperatureMin *float64 `json:"temperature_min,omitempty" yaml:"temperature_min,omitempty"`
	TemperatureMax *float64 `json:"temperature_max,omitempty" yaml:"temperature_max,omitempty"`
}

// Fields lists every field of the record, set or not, in fragment order.
func (r Record) Fields() []Field {
	return []Field{
		Identity{Name: "Name", Values: []string{r.Name}},
		Identity{Name: "Scientific name", Values: []string{r.ScientificName}},
		Identity{Name: "Common names", Values: r.CommonNames},

		Taxonomy{Name: "Family", Value: r.Family},
		Taxonomy{Name: "Genus", Value: r.Genus},
		Taxonomy{Name: "Category", Value: r.Category},

		Description{Name: "Description", Values: []string{r.Description}},
		Description{Name: "Sunlight", Values: r.Sunlight},
		Description{Name: "Watering", Values: []string{r.Watering}},
		Description{Name: "Soil", Values: r.Soil},
		Description{Name: "Growth rate", Values: []string{r.GrowthRate}},
		Description{Name: "Hardiness zones", Values: r.HardinessZones},
		Description{Name: "Toxicity", Values: []string{r.Toxicity}},
		Description{Name: "Care notes", Values: []string{r.CareNotes}},

		Measurement{Name: "Height", Unit: "cm", Min: r.HeightMin, Max: r.HeightMax},
		Measurement{Name: "Spread", Unit: "cm", Min: r.SpreadMin, Max: r.SpreadMax},
		Measurement{Name: "Temperature", Unit: "°C", Min: r.TemperatureMin, Max: r.TemperatureMax},
	}
}

// SourceID is the record id, or an id derived from the scientific name or
// name when the record has none. Records without any of them have no source.
func (r Record) SourceID() string {
	if id := strings.TrimSpace(r.ID); id != "" {
		return id
	}
	key := strings.TrimSpace(r.ScientificName)
	if key == "" {
		key = strings.TrimSpace(r.Name)
	}
	if key == "" {
		return ""
	}
	return uuid.NewSHA1(sourceNamespace, []byte(strings.ToLower(key))).String()
}

func (r Record) Chunks() []string {
	return Chunk(r)
}
