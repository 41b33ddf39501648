// Package model defines the core data types shared across the discovery pipeline.
package model

// ExtractConfig describes how candidate names and addresses are located
// within a source page's markup.
type ExtractConfig struct {
	Container       string `yaml:"container" json:"container"`
	NameSelector    string `yaml:"name_selector" json:"name_selector"`
	AddressSelector string `yaml:"address_selector" json:"address_selector,omitempty"`
}

// Source identifies one publisher page to scan. Sources are static
// configuration: the pipeline reads them but never modifies them.
type Source struct {
	Name    string        `yaml:"name" json:"name"`
	URL     string        `yaml:"url" json:"url"`
	Extract ExtractConfig `yaml:"extract" json:"extract"`
}
