// Package testitem extracts ChEMBL molecules as test items.
package testitem

import (
	"github.com/ajitpratap0/bioetl/pkg/config"
	"github.com/ajitpratap0/bioetl/pkg/entities"
	"github.com/ajitpratap0/bioetl/pkg/extraction"
	"github.com/ajitpratap0/bioetl/pkg/models"
)

// Name is the registry key of the entity.
const Name = "testitem"

const idColumn = "molecule_chembl_id"

var propertyKeys = []string{
	"full_mwt",
	"alogp",
	"hba",
	"hbd",
	"psa",
	"rtb",
	"num_ro5_violations",
	"full_molformula",
}

var structureKeys = []string{
	"canonical_smiles",
	"standard_inchi",
	"standard_inchi_key",
}

// Schema is the column set of a test item table.
func Schema() []string {
	cols := []string{
		idColumn,
		"pref_name",
		"molecule_type",
		"max_phase",
		"first_approval",
		"molecule_synonyms",
		"atc_classifications",
	}
	for _, k := range propertyKeys {
		cols = append(cols, "property_"+k)
	}
	for _, k := range structureKeys {
		cols = append(cols, "structure_"+k)
	}
	return append(cols, entities.ReleaseColumn)
}

// Descriptor returns a fresh test item descriptor.
func Descriptor() *extraction.Descriptor {
	return &extraction.Descriptor{
		Name:            Name,
		Source:          "chembl",
		Endpoint:        "molecule.json",
		FilterParam:     idColumn + "__in",
		ItemKeys:        []string{"molecules"},
		IDColumn:        idColumn,
		MandatoryFields: []string{idColumn},
		DefaultFields: []string{
			idColumn,
			"pref_name",
			"molecule_type",
			"max_phase",
			"first_approval",
			"molecule_synonyms",
			"atc_classifications",
			"molecule_properties",
			"molecule_structures",
		},
		SortBy:      []config.SortKey{{Column: idColumn}},
		MaxPageSize: 1000,
		Schema:      Schema(),
		Defaults:    config.DefaultEntityDefaults(),
		PostProcessors: []extraction.PostProcessor{
			entities.SerializeObjects("molecule_synonyms", "molecule_synonym", "syn_type", "synonyms"),
			entities.SerializeList("atc_classifications", ""),
			entities.FlattenObject("molecule_properties", "property_", propertyKeys...),
			entities.FlattenObject("molecule_structures", "structure_", structureKeys...),
			entities.CoerceInt("first_approval"),
			entities.StampRelease(),
		},
		Hooks: hooks{},
	}
}

type hooks struct {
	extraction.BaseHooks
}

// EmptyFrame returns the declared schema with no rows.
func (hooks) EmptyFrame(c *extraction.Context) *models.Table {
	return entities.SchemaFrame(c)
}

// DryRun returns the declared schema so downstream writers see the real
// column set.
func (hooks) DryRun(c *extraction.Context) (*models.Table, error) {
	return entities.SchemaFrame(c), nil
}
