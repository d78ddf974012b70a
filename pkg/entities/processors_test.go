package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/bioetl/pkg/config"
	"github.com/ajitpratap0/bioetl/pkg/errors"
	"github.com/ajitpratap0/bioetl/pkg/extraction"
	jsonpool "github.com/ajitpratap0/bioetl/pkg/json"
	"github.com/ajitpratap0/bioetl/pkg/models"
	"github.com/ajitpratap0/bioetl/pkg/testutil"
)

func testContext(policy config.InvariantPolicy, logger *zap.Logger) *extraction.Context {
	return &extraction.Context{
		Descriptor: &extraction.Descriptor{Name: "x", Endpoint: "x.json", IDColumn: "id"},
		Runtime:    config.RuntimeConfig{InvariantPolicy: policy},
		Logger:     logger,
		Release:    "CHEMBL_34",
	}
}

func run(t *testing.T, p extraction.PostProcessor, c *extraction.Context, rows ...models.Record) *models.Table {
	t.Helper()
	out, err := p.Process(models.FromRecords(rows), c)
	require.NoError(t, err)
	return out
}

func TestCoerceInt(t *testing.T) {
	log, logs := testutil.ObservedLogger(zap.WarnLevel)
	c := testContext(config.InvariantWarn, log)
	out := run(t, CoerceInt("n"), c,
		models.Record{"id": "a", "n": jsonpool.Number("12")},
		models.Record{"id": "b", "n": "3.0"},
		models.Record{"id": "c", "n": "3.5"},
		models.Record{"id": "d", "n": nil},
		models.Record{"id": "e", "n": " "},
	)
	assert.Equal(t, []interface{}{int64(12), int64(3), nil, nil, nil}, out.Column("n"))
	assert.Equal(t, 1, logs.FilterMessage("value is not an integer").Len())
}

func TestFlattenObject(t *testing.T) {
	c := testContext(config.InvariantWarn, zap.NewNop())
	rows := []models.Record{
		{"id": "a", "props": map[string]interface{}{"b": 1, "a": 2}},
		{"id": "b", "props": map[string]interface{}{"c": 3}},
	}

	t.Run("all keys sorted", func(t *testing.T) {
		out := run(t, FlattenObject("props", "p_"), c, cloneRows(rows)...)
		assert.Equal(t, []string{"id", "p_a", "p_b", "p_c"}, out.Columns())
		assert.Nil(t, out.Row(1)["p_a"])
	})

	t.Run("selected keys", func(t *testing.T) {
		out := run(t, FlattenObject("props", "p_", "c", "a"), c, cloneRows(rows)...)
		assert.Equal(t, []string{"id", "p_c", "p_a"}, out.Columns())
		assert.Equal(t, 3, out.Row(1)["p_c"])
	})
}

func TestSerializeList(t *testing.T) {
	c := testContext(config.InvariantWarn, zap.NewNop())
	out := run(t, SerializeList("xs", "name"), c,
		models.Record{"id": "a", "xs": []interface{}{
			map[string]interface{}{"name": "a|b"},
			map[string]interface{}{"name": nil},
			map[string]interface{}{"name": "c"},
		}},
		models.Record{"id": "b"},
	)
	assert.Equal(t, `a\|b|c|`, out.Row(0)["xs"])
	assert.Equal(t, "", out.Row(1)["xs"])
}

func TestCollectNested(t *testing.T) {
	c := testContext(config.InvariantWarn, zap.NewNop())
	out := run(t, CollectNested("comps", "syns", "s", "all"), c,
		models.Record{"id": "a", "comps": []interface{}{
			map[string]interface{}{"syns": []interface{}{map[string]interface{}{"s": "X"}, map[string]interface{}{"s": "Y"}}},
			map[string]interface{}{"syns": []interface{}{map[string]interface{}{"s": "X"}, map[string]interface{}{"s": ""}}},
			"not an object",
		}},
	)
	assert.Equal(t, "X|Y|", out.Row(0)["all"])
}

func TestSerializeObjectsSingleObject(t *testing.T) {
	c := testContext(config.InvariantWarn, zap.NewNop())
	out := run(t, SerializeObjects("o", "k"), c,
		models.Record{"id": "a", "o": map[string]interface{}{"v": "1", "k": "2"}},
		models.Record{"id": "b", "o": []interface{}{}},
	)
	assert.Equal(t, "k|v/2|1", out.Row(0)["o"])
	assert.Equal(t, "", out.Row(1)["o"])
}

func TestStampRelease(t *testing.T) {
	c := testContext(config.InvariantWarn, zap.NewNop())
	out := run(t, StampRelease(), c, models.Record{"id": "a"})
	assert.Equal(t, "CHEMBL_34", out.Row(0)[ReleaseColumn])

	c.Release = ""
	out = run(t, StampRelease(), c, models.Record{"id": "a"})
	assert.Nil(t, out.Row(0)[ReleaseColumn])
}

func TestCheckExclusive(t *testing.T) {
	row := func() models.Record {
		return models.Record{"id": "a", "params": []interface{}{
			map[string]interface{}{"value": 1, "text_value": "high"},
		}}
	}

	log, logs := testutil.ObservedLogger(zap.WarnLevel)
	out := run(t, CheckExclusive("params", "value", "text_value"), testContext(config.InvariantWarn, log), row())
	assert.Equal(t, 1, out.Len())
	assert.Equal(t, 1, logs.Len())

	_, err := CheckExclusive("params", "value", "text_value").
		Process(models.FromRecords([]models.Record{row()}), testContext(config.InvariantFailFast, zap.NewNop()))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestSchemaFrame(t *testing.T) {
	c := testContext(config.InvariantWarn, zap.NewNop())
	c.Fields = []string{"id", "name"}
	assert.Equal(t, []string{"id", "name"}, SchemaFrame(c).Columns())

	c.Descriptor.Schema = []string{"id", "name", "extra"}
	assert.Equal(t, []string{"id", "name", "extra"}, SchemaFrame(c).Columns())
}

func cloneRows(rows []models.Record) []models.Record {
	out := make([]models.Record, len(rows))
	for i, r := range rows {
		cp := models.Record{}
		for k, v := range r {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}
