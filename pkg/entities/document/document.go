// Package document extracts ChEMBL documents.
package document

import (
	"strings"

	"github.com/ajitpratap0/bioetl/pkg/config"
	"github.com/ajitpratap0/bioetl/pkg/entities"
	"github.com/ajitpratap0/bioetl/pkg/extraction"
	"github.com/ajitpratap0/bioetl/pkg/models"
	"github.com/ajitpratap0/bioetl/pkg/serialize"
)

// Name is the registry key of the entity.
const Name = "document"

const idColumn = "document_chembl_id"

// Descriptor returns a fresh document descriptor.
func Descriptor() *extraction.Descriptor {
	return &extraction.Descriptor{
		Name:            Name,
		Source:          "chembl",
		Endpoint:        "document.json",
		FilterParam:     idColumn + "__in",
		ItemKeys:        []string{"documents"},
		IDColumn:        idColumn,
		MandatoryFields: []string{idColumn},
		DefaultFields: []string{
			idColumn,
			"doc_type",
			"title",
			"abstract",
			"authors",
			"journal",
			"year",
			"volume",
			"issue",
			"first_page",
			"last_page",
			"doi",
			"pubmed_id",
		},
		SortBy:      []config.SortKey{{Column: idColumn}},
		MaxPageSize: 1000,
		Defaults:    config.DefaultEntityDefaults(),
		PostProcessors: []extraction.PostProcessor{
			extraction.NewPostProcessor("normalize_authors", normalizeAuthors),
			entities.CoerceInt("year"),
			entities.CoerceInt("pubmed_id"),
			entities.StampRelease(),
		},
		Hooks: hooks{},
	}
}

type hooks struct {
	extraction.BaseHooks
}

// TransformRecord collapses whitespace in free-text fields.
func (hooks) TransformRecord(r models.Record, c *extraction.Context) (models.Record, error) {
	for _, k := range []string{"title", "abstract", "journal"} {
		if s, ok := r[k].(string); ok {
			r[k] = strings.Join(strings.Fields(s), " ")
		}
	}
	return r, nil
}

// normalizeAuthors turns the upstream comma separated author string into a
// pipe list.
func normalizeAuthors(t *models.Table, c *extraction.Context) (*models.Table, error) {
	if !t.HasColumn("authors") {
		return t, nil
	}
	t.SetColumn("authors", func(r models.Record) interface{} {
		s, ok := r["authors"].(string)
		if !ok {
			return nil
		}
		var names []string
		for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
			if name := strings.TrimSpace(part); name != "" {
				names = append(names, name)
			}
		}
		return serialize.Strings(names)
	})
	return t, nil
}
