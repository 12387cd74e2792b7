package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/specgraph/apperr"
	"github.com/TFMV/specgraph/models"
)

func TestDecodeGraph(t *testing.T) {
	body := []byte(`{
		"nodes": [{"id": "a", "type": "added"}, {"id": "b", "type": "deleted"}, {"id": 7}],
		"links": [{"source": "a", "target": "b"}, {"source": "x", "target": "y"}]
	}`)

	snap, warnings, err := DecodeGraph(body)
	require.NoError(t, err)

	require.Len(t, snap.Nodes, 3)
	assert.Equal(t, models.TypeAdded, snap.Nodes[0].Type)
	assert.Equal(t, models.TypeDeleted, snap.Nodes[1].Type)
	assert.Equal(t, models.Node{ID: "7", Type: models.TypeUnknown}, snap.Nodes[2])
	assert.Equal(t, []models.Link{{Source: "a", Target: "b"}}, snap.Links)
	require.Len(t, warnings, 1)
	assert.ErrorIs(t, warnings[0], apperr.ErrMalformedGraph)
}

func TestDecodeGraphRejectsGarbage(t *testing.T) {
	_, _, err := DecodeGraph([]byte(`{"nodes": [`))
	assert.Error(t, err)
}

func TestEncodeGraphRoundTripsWireShape(t *testing.T) {
	snap, _ := models.NewSnapshot(
		[]models.Node{{ID: "a", Type: models.TypeModified}, {ID: "b", Type: models.TypeUnknown}},
		[]models.Link{{Source: "a", Target: "b"}},
	)

	data, err := EncodeGraph(snap)
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes":[{"id":"a","type":"modified"},{"id":"b"}],"links":[{"source":"a","target":"b"}]}`, string(data))
}

func TestDecodeQueryResultMissingHighlight(t *testing.T) {
	res, err := DecodeQueryResult([]byte(`{"answer": "nothing"}`))
	require.NoError(t, err)

	assert.Equal(t, "nothing", res.Answer)
	assert.NotNil(t, res.Highlight)
	assert.Empty(t, res.Highlight)
}

func TestCSVProcessor(t *testing.T) {
	data := []byte("source,target,source_type,target_type\n4.1,4.2,added,removed\n4.2,4.3,,modified\n")

	ds, err := (&CSVProcessor{}).ProcessData(data)
	require.NoError(t, err)

	require.Len(t, ds.Entries, 3)
	assert.Equal(t, models.TypeAdded, ds.Entries[0].Type)
	assert.Equal(t, models.TypeDeleted, ds.Entries[1].Type)
	assert.Equal(t, models.TypeModified, ds.Entries[2].Type)
	assert.Len(t, ds.Links, 2)
}

func TestCSVProcessorRequiresColumns(t *testing.T) {
	_, err := (&CSVProcessor{}).ProcessData([]byte("a,b\n1,2\n"))
	assert.Error(t, err)
}

func TestLoadDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spec.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"nodes": [{"id": "5.1", "type": "added", "title": "Timers", "text": "T3412 extended"}],
		"links": []
	}`), 0o644))

	ds, err := LoadDataset(path)
	require.NoError(t, err)

	assert.Equal(t, "spec.json", ds.Name)
	entry, ok := ds.Entry("5.1")
	require.True(t, ok)
	assert.Equal(t, "Timers", entry.Title)

	_, err = LoadDataset(filepath.Join(t.TempDir(), "spec.yaml"))
	assert.Error(t, err)
}
