// Package ingest decodes graph and query payloads exchanged with the
// collaborators, and loads the change-spec datasets served by the reference
// backend.
package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/TFMV/specgraph/models"
)

// flexID accepts both JSON strings and numbers, since graph builders emit
// either.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

type wireGraph struct {
	Nodes []struct {
		ID   flexID `json:"id"`
		Type string `json:"type"`
	} `json:"nodes"`
	Links []struct {
		Source flexID `json:"source"`
		Target flexID `json:"target"`
	} `json:"links"`
}

// DecodeGraph parses a GET /api/graph body into a sanitized snapshot. The
// returned warnings list links dropped because an endpoint is missing.
func DecodeGraph(data []byte) (*models.Snapshot, []error, error) {
	var g wireGraph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, nil, fmt.Errorf("error parsing graph JSON: %w", err)
	}

	nodes := make([]models.Node, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes = append(nodes, models.Node{ID: string(n.ID), Type: models.ParseNodeType(n.Type)})
	}
	links := make([]models.Link, 0, len(g.Links))
	for _, l := range g.Links {
		links = append(links, models.Link{Source: string(l.Source), Target: string(l.Target)})
	}

	snap, warnings := models.NewSnapshot(nodes, links)
	return snap, warnings, nil
}

// EncodeGraph renders a snapshot in the GET /api/graph wire shape.
func EncodeGraph(snap *models.Snapshot) ([]byte, error) {
	type node struct {
		ID   string `json:"id"`
		Type string `json:"type,omitempty"`
	}
	type link struct {
		Source string `json:"source"`
		Target string `json:"target"`
	}
	out := struct {
		Nodes []node `json:"nodes"`
		Links []link `json:"links"`
	}{
		Nodes: make([]node, 0, len(snap.Nodes)),
		Links: make([]link, 0, len(snap.Links)),
	}
	for _, n := range snap.Nodes {
		t := string(n.Type)
		if n.Type == models.TypeUnknown {
			t = ""
		}
		out.Nodes = append(out.Nodes, node{ID: n.ID, Type: t})
	}
	for _, l := range snap.Links {
		out.Links = append(out.Links, link{Source: l.Source, Target: l.Target})
	}
	return json.Marshal(out)
}

// DecodeQueryResult parses a POST /api/query body. A missing highlight array
// is an empty set.
func DecodeQueryResult(data []byte) (*models.QueryResult, error) {
	var res models.QueryResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("error parsing query JSON: %w", err)
	}
	if res.Highlight == nil {
		res.Highlight = []string{}
	}
	return &res, nil
}

// Entry is one section of a change specification.
type Entry struct {
	ID    string          `json:"id"`
	Type  models.NodeType `json:"type"`
	Title string          `json:"title"`
	Text  string          `json:"text"`
}

// Dataset is the knowledge the reference backend answers queries from.
type Dataset struct {
	Name    string
	Entries []Entry
	Links   []models.Link
}

// Snapshot projects the dataset onto a graph snapshot.
func (d *Dataset) Snapshot() (*models.Snapshot, []error) {
	nodes := make([]models.Node, 0, len(d.Entries))
	for _, e := range d.Entries {
		nodes = append(nodes, models.Node{ID: e.ID, Type: e.Type})
	}
	return models.NewSnapshot(nodes, d.Links)
}

// Entry returns the entry with the given id.
func (d *Dataset) Entry(id string) (Entry, bool) {
	for _, e := range d.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// DataProcessor defines the interface that all dataset processors must implement
type DataProcessor interface {
	// ProcessData takes raw data bytes and returns a dataset
	ProcessData(data []byte) (*Dataset, error)

	// GetName returns the name of the processor
	GetName() string
}

// JSONProcessor handles JSON datasets of the form
// {"nodes":[{"id","type","title","text"}],"links":[{"source","target"}]}.
type JSONProcessor struct{}

// GetName returns the name of the processor
func (p *JSONProcessor) GetName() string {
	return "JSON Processor"
}

// ProcessData processes JSON data
func (p *JSONProcessor) ProcessData(data []byte) (*Dataset, error) {
	var raw struct {
		Nodes []struct {
			ID    flexID `json:"id"`
			Type  string `json:"type"`
			Title string `json:"title"`
			Text  string `json:"text"`
		} `json:"nodes"`
		Links []struct {
			Source flexID `json:"source"`
			Target flexID `json:"target"`
		} `json:"links"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("error parsing JSON: %w", err)
	}

	ds := &Dataset{Name: "JSON Import"}
	for _, n := range raw.Nodes {
		ds.Entries = append(ds.Entries, Entry{
			ID:    string(n.ID),
			Type:  models.ParseNodeType(n.Type),
			Title: n.Title,
			Text:  n.Text,
		})
	}
	for _, l := range raw.Links {
		ds.Links = append(ds.Links, models.Link{Source: string(l.Source), Target: string(l.Target)})
	}
	return ds, nil
}

// CSVProcessor handles edge lists with source and target columns, plus
// optional source_type and target_type columns.
type CSVProcessor struct{}

// GetName returns the name of the processor
func (p *CSVProcessor) GetName() string {
	return "CSV Processor"
}

// ProcessData processes CSV data
func (p *CSVProcessor) ProcessData(data []byte) (*Dataset, error) {
	reader := csv.NewReader(bytes.NewReader(data))

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("error reading CSV header: %w", err)
	}

	sourceIdx, targetIdx := -1, -1
	sourceTypeIdx, targetTypeIdx := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "source", "from", "src":
			sourceIdx = i
		case "target", "to", "dst":
			targetIdx = i
		case "source_type":
			sourceTypeIdx = i
		case "target_type":
			targetTypeIdx = i
		}
	}
	if sourceIdx == -1 || targetIdx == -1 {
		return nil, fmt.Errorf("CSV must contain source and target columns")
	}

	ds := &Dataset{Name: "CSV Import"}
	index := make(map[string]int)
	addEntry := func(id string, row []string, typeIdx int) {
		t := models.TypeUnknown
		if typeIdx >= 0 && typeIdx < len(row) {
			t = models.ParseNodeType(row[typeIdx])
		}
		if i, ok := index[id]; ok {
			if ds.Entries[i].Type == models.TypeUnknown {
				ds.Entries[i].Type = t
			}
			return
		}
		index[id] = len(ds.Entries)
		ds.Entries = append(ds.Entries, Entry{ID: id, Type: t, Title: id})
	}

	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV row %d: %w", line, err)
		}
		source := strings.TrimSpace(row[sourceIdx])
		target := strings.TrimSpace(row[targetIdx])
		if source == "" || target == "" {
			continue
		}
		addEntry(source, row, sourceTypeIdx)
		addEntry(target, row, targetTypeIdx)
		ds.Links = append(ds.Links, models.Link{Source: source, Target: target})
	}
	return ds, nil
}

// GetProcessor returns the appropriate processor for the given format
func GetProcessor(format string) (DataProcessor, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "json":
		return &JSONProcessor{}, nil
	case "csv":
		return &CSVProcessor{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// LoadDataset reads a dataset file, choosing the processor by extension.
func LoadDataset(path string) (*Dataset, error) {
	processor, err := GetProcessor(filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	ds, err := processor.ProcessData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to process dataset %s: %w", path, err)
	}
	ds.Name = filepath.Base(path)
	return ds, nil
}
