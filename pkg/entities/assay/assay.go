// Package assay extracts ChEMBL assays.
package assay

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/bioetl/pkg/config"
	"github.com/ajitpratap0/bioetl/pkg/entities"
	"github.com/ajitpratap0/bioetl/pkg/extraction"
	"github.com/ajitpratap0/bioetl/pkg/models"
)

// Name is the registry key of the entity.
const Name = "assay"

const idColumn = "assay_chembl_id"

// Descriptor returns a fresh assay descriptor.
func Descriptor() *extraction.Descriptor {
	return &extraction.Descriptor{
		Name:            Name,
		Source:          "chembl",
		Endpoint:        "assay.json",
		FilterParam:     idColumn + "__in",
		ItemKeys:        []string{"assays"},
		IDColumn:        idColumn,
		MandatoryFields: []string{idColumn},
		DefaultFields: []string{
			idColumn,
			"assay_type",
			"assay_category",
			"assay_organism",
			"assay_tax_id",
			"description",
			"document_chembl_id",
			"target_chembl_id",
			"confidence_score",
			"assay_parameters",
			"assay_classifications",
			"variant_sequence",
		},
		SortBy:      []config.SortKey{{Column: idColumn}},
		MaxPageSize: 1000,
		Defaults:    config.DefaultEntityDefaults(),
		PostProcessors: []extraction.PostProcessor{
			entities.CheckExclusive("assay_parameters", "value", "text_value"),
			entities.SerializeObjects("assay_parameters", "type", "relation", "value", "units", "text_value"),
			entities.SerializeObjects("assay_classifications", "assay_class_id", "l1", "l2", "l3"),
			entities.SerializeObjects("variant_sequence"),
			entities.CoerceInt("confidence_score"),
			entities.CoerceInt("assay_tax_id"),
			entities.StampRelease(),
		},
		Hooks: hooks{},
	}
}

type hooks struct {
	extraction.BaseHooks
}

// SummaryFields reports how many assays carry parameters.
func (hooks) SummaryFields(t *models.Table, c *extraction.Context) []zap.Field {
	withParams := 0
	for _, r := range t.Rows() {
		if s, ok := r["assay_parameters"].(string); ok && s != "" {
			withParams++
		}
	}
	return []zap.Field{zap.Int("assays_with_parameters", withParams)}
}
