// Package target extracts ChEMBL targets.
package target

import (
	"github.com/ajitpratap0/bioetl/pkg/config"
	"github.com/ajitpratap0/bioetl/pkg/entities"
	"github.com/ajitpratap0/bioetl/pkg/extraction"
)

// Name is the registry key of the entity.
const Name = "target"

const idColumn = "target_chembl_id"

// Descriptor returns a fresh target descriptor.
func Descriptor() *extraction.Descriptor {
	defaults := config.DefaultEntityDefaults()
	// Component lists make target pages heavy.
	defaults.PageSize = 20
	defaults.BatchSize = 20

	return &extraction.Descriptor{
		Name:            Name,
		Source:          "chembl",
		Endpoint:        "target.json",
		FilterParam:     idColumn + "__in",
		ItemKeys:        []string{"targets"},
		IDColumn:        idColumn,
		MandatoryFields: []string{idColumn},
		DefaultFields: []string{
			idColumn,
			"pref_name",
			"target_type",
			"organism",
			"tax_id",
			"species_group_flag",
			"target_components",
			"cross_references",
		},
		SortBy:      []config.SortKey{{Column: idColumn}},
		MaxPageSize: 500,
		Defaults:    defaults,
		PostProcessors: []extraction.PostProcessor{
			entities.CollectNested("target_components", "target_component_synonyms", "component_synonym", "target_synonyms"),
			entities.SerializeObjects("target_components", "component_id", "accession", "component_type", "component_description", "relationship"),
			entities.SerializeObjects("cross_references", "xref_src", "xref_id", "xref_name"),
			entities.CoerceInt("tax_id"),
			entities.StampRelease(),
		},
	}
}
