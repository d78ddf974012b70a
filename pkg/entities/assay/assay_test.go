package assay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/bioetl/pkg/config"
	"github.com/ajitpratap0/bioetl/pkg/entities"
	"github.com/ajitpratap0/bioetl/pkg/entities/entitytest"
	"github.com/ajitpratap0/bioetl/pkg/errors"
	"github.com/ajitpratap0/bioetl/pkg/extraction"
	"github.com/ajitpratap0/bioetl/pkg/serialize"
)

func assays() []map[string]interface{} {
	return []map[string]interface{}{
		{
			"assay_chembl_id":  "CHEMBL10",
			"assay_type":       "B",
			"description":      "binding",
			"confidence_score": 9,
			"assay_tax_id":     "9606",
			"assay_parameters": []interface{}{
				map[string]interface{}{"type": "PH", "value": 7.4, "units": nil},
				map[string]interface{}{"type": "TEMPERATURE", "text_value": "room"},
			},
			"assay_classifications": []interface{}{},
		},
		{
			"assay_chembl_id":  "CHEMBL2",
			"assay_type":       "F",
			"confidence_score": "8",
			"assay_parameters": nil,
			"variant_sequence": map[string]interface{}{"mutation": "V600E", "accession": "P15056"},
		},
	}
}

func TestRegistered(t *testing.T) {
	d, err := extraction.Lookup(Name)
	require.NoError(t, err)
	assert.Equal(t, "assay.json", d.Endpoint)
	require.NoError(t, d.Validate())
}

func TestExtractAssays(t *testing.T) {
	d := Descriptor()
	h := entitytest.New(t, d, config.RuntimeConfig{}, assays()...)
	res := h.ByIDs(t, d, "CHEMBL2", "CHEMBL10")

	require.Equal(t, 2, res.Table.Len())
	assert.Equal(t, entitytest.Release, res.Release)

	first := res.Table.Row(0)
	assert.Equal(t, "CHEMBL10", first[idColumn])
	assert.Equal(t, int64(9), first["confidence_score"])
	assert.Equal(t, int64(9606), first["assay_tax_id"])
	assert.Equal(t, entitytest.Release, first[entities.ReleaseColumn])

	params := serialize.ParseObjects(first["assay_parameters"].(string))
	require.Len(t, params, 2)
	assert.Equal(t, "PH", params[0]["type"])
	assert.Equal(t, "7.4", params[0]["value"])
	assert.Equal(t, "room", params[1]["text_value"])
	assert.Equal(t, "", first["assay_classifications"])

	second := res.Table.Row(1)
	assert.Equal(t, "", second["assay_parameters"])
	assert.Equal(t, int64(8), second["confidence_score"])
	variant := serialize.ParseObjects(second["variant_sequence"].(string))
	require.Len(t, variant, 1)
	assert.Equal(t, "V600E", variant[0]["mutation"])
}

func TestExclusiveParametersFailFast(t *testing.T) {
	records := assays()
	records[0]["assay_parameters"] = []interface{}{
		map[string]interface{}{"type": "PH", "value": 7.4, "text_value": "neutral"},
	}
	d := Descriptor()

	t.Run("warn", func(t *testing.T) {
		h := entitytest.New(t, d, config.RuntimeConfig{InvariantPolicy: config.InvariantWarn}, records...)
		res := h.ByIDs(t, d, "CHEMBL10")
		assert.Equal(t, 1, res.Table.Len())
	})

	t.Run("fail fast", func(t *testing.T) {
		h := entitytest.New(t, d, config.RuntimeConfig{InvariantPolicy: config.InvariantFailFast}, records...)
		engine, err := extraction.NewEngine(d, h.Env)
		require.NoError(t, err)
		_, err = engine.ExtractByIDs(context.Background(), h.Source(), []string{"CHEMBL10"})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeData))
	})
}

func TestDisabledAssayIsIDColumnOnly(t *testing.T) {
	d := Descriptor()
	h := entitytest.New(t, d, config.RuntimeConfig{}, assays()...)
	src := h.Source()
	src.Disabled = true

	engine, err := extraction.NewEngine(d, h.Env)
	require.NoError(t, err)
	res, err := engine.ExtractAll(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, []string{idColumn}, res.Table.Columns())
	assert.Empty(t, h.API.Calls())
}
