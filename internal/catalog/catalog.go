// Package catalog holds the answer options offered by the plant questionnaire.
package catalog

import (
	_ "embed"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

type Catalog struct {
	LastWatered []string `yaml:"lastWatered" json:"lastWatered"`
	Light       []string `yaml:"light" json:"light"`
	Soil        []string `yaml:"soil" json:"soil"`
	Symptoms    []string `yaml:"symptoms" json:"symptoms"`
}

// Load parses the embedded catalog.
func Load() (Catalog, error) {
	return Parse(catalogYAML)
}

func Parse(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	if len(c.Light) == 0 || len(c.Soil) == 0 || len(c.Symptoms) == 0 {
		return Catalog{}, fmt.Errorf("parse catalog: catalog has empty option lists")
	}
	return c, nil
}

// MustLoad is Load for program start, where a broken embedded file is a
// build defect.
func MustLoad() Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

func (c Catalog) IsSymptom(s string) bool {
	return slices.Contains(c.Symptoms, s)
}
