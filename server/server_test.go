package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/specgraph/ingest"
	"github.com/TFMV/specgraph/models"
	"github.com/TFMV/specgraph/scene"
	"github.com/TFMV/specgraph/store"
)

func testDataset() *ingest.Dataset {
	return &ingest.Dataset{
		Name: "spec-diff",
		Entries: []ingest.Entry{
			{ID: "1", Type: models.TypeAdded, Title: "Retry policy", Text: "Requests are retried three times."},
			{ID: "2", Type: models.TypeDeleted, Title: "Legacy auth", Text: "Basic auth is no longer accepted."},
			{ID: "3", Type: models.TypeModified, Title: "Timeouts", Text: strings.Repeat("t", 310)},
			{ID: "4", Type: models.TypeUnknown, Text: "Auth tokens rotate daily."},
		},
		Links: []models.Link{
			{Source: "1", Target: "3"},
			{Source: "2", Target: "4"},
			{Source: "2", Target: "missing"},
		},
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAnswer(t *testing.T) {
	ds := testDataset()
	snap, _ := ds.Snapshot()

	tests := []struct {
		name      string
		query     string
		answer    string
		highlight []string
	}{
		{name: "empty", query: "   ", answer: AnswerEmptyQuery, highlight: []string{}},
		{name: "no match", query: "kubernetes", answer: AnswerNoMatch, highlight: []string{}},
		{name: "title match", query: "  RETRY ", highlight: []string{"1"}},
		{name: "text match", query: "auth", highlight: []string{"2", "4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Answer(ds, snap, tt.query)
			assert.Equal(t, tt.highlight, res.Highlight)
			if tt.answer != "" {
				assert.Equal(t, tt.answer, res.Answer)
			}
		})
	}
}

func TestAnswerSections(t *testing.T) {
	ds := testDataset()
	snap, _ := ds.Snapshot()

	res := Answer(ds, snap, "retry")
	want := "🔹 Retry policy: Requests are retried three times.\n\n" +
		"   ↪ Timeouts: " + strings.Repeat("t", 300) + "..."
	assert.Equal(t, want, res.Answer)

	res = Answer(ds, snap, "auth")
	sections := strings.Split(res.Answer, "\n\n---\n\n")
	require.Len(t, sections, 2)
	assert.Equal(t, "🔹 Legacy auth: Basic auth is no longer accepted.\n\n   ↪ 4: Auth tokens rotate daily.", sections[0])
	assert.True(t, strings.HasPrefix(sections[1], "🔹 4: Auth tokens rotate daily.\n\n   ↪ Legacy auth: Basic auth"))
}

func TestGraphEndpoint(t *testing.T) {
	h := New(Config{}, testDataset(), nil).Router()

	rec := do(t, h, http.MethodGet, "/api/graph", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	snap, warnings, err := ingest.DecodeGraph(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Len(t, snap.Nodes, 4)
	assert.Len(t, snap.Links, 2)
	assert.Equal(t, models.TypeDeleted, snap.Nodes[1].Type)
}

func TestQueryEndpoint(t *testing.T) {
	h := New(Config{}, testDataset(), nil).Router()

	rec := do(t, h, http.MethodPost, "/api/query", `{"query":"timeouts"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res models.QueryResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, []string{"3"}, res.Highlight)

	rec = do(t, h, http.MethodPost, "/api/query", `{"query":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, AnswerError, res.Answer)
	assert.Empty(t, res.Highlight)

	rec = do(t, h, http.MethodPost, "/api/query", `{"query":"`+strings.Repeat("x", 2001)+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := New(Config{}, testDataset(), nil).Router()

	rec := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "specgraph_http_requests_total")
}

func TestCORS(t *testing.T) {
	h := New(Config{AllowedOrigins: []string{"http://localhost:3000"}}, testDataset(), nil).Router()

	req := httptest.NewRequest(http.MethodOptions, "/api/query", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUpload(t *testing.T) {
	srv := New(Config{}, testDataset(), nil)
	h := srv.Router()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("dataFile", "edges.csv")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("source,target,source_type\nx,y,added\ny,z,\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	ds, snap := srv.current()
	assert.Equal(t, "edges.csv", ds.Name)
	assert.Len(t, snap.Nodes, 3)
	assert.Len(t, snap.Links, 2)
}

func TestIndex(t *testing.T) {
	h := New(Config{}, testDataset(), nil).Router()
	rec := do(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "spec-diff")
	assert.Contains(t, rec.Body.String(), "/api/graph")
}

func TestVizRoutesAbsentWithoutScene(t *testing.T) {
	h := New(Config{}, testDataset(), nil).Router()
	rec := do(t, h, http.MethodGet, "/viz/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func mountedServer(t *testing.T) (http.Handler, *scene.Scene) {
	t.Helper()
	srv := New(Config{}, testDataset(), nil)
	st := store.New(srv, nil)

	opts := scene.DefaultOptions()
	opts.Width, opts.Height = 400, 300
	sc, err := scene.New(st, srv, opts, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sc.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	srv.Mount(sc)
	return srv.Router(), sc
}

func TestVizFlow(t *testing.T) {
	h, _ := mountedServer(t)

	rec := do(t, h, http.MethodPost, "/viz/reload", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var st scene.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 4, st.Nodes)
	assert.Equal(t, 2, st.Links)

	rec = do(t, h, http.MethodPost, "/viz/query", `{"query":"legacy"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"highlight":["2"]`)

	rec = do(t, h, http.MethodGet, "/viz/frame.svg", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `fill="#FFA500"`)

	rec = do(t, h, http.MethodGet, "/viz/frame.txt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")

	rec = do(t, h, http.MethodGet, "/viz/frame.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, json.Valid(rec.Body.Bytes()))

	rec = do(t, h, http.MethodGet, "/viz/frame.png", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVizFrameServesLiveFrame(t *testing.T) {
	h, sc := mountedServer(t)
	ctx := context.Background()

	rec := do(t, h, http.MethodPost, "/viz/reload", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Eventually(t, func() bool {
		st, err := sc.Status(ctx)
		return err == nil && !st.Active
	}, 20*time.Second, 20*time.Millisecond)

	live, contentType, err := sc.Frame(ctx)
	require.NoError(t, err)
	assert.Equal(t, "svg", sc.Format())

	rec = do(t, h, http.MethodGet, "/viz/frame.svg", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, string(live), rec.Body.String())
}

func TestVizPointerValidation(t *testing.T) {
	h, _ := mountedServer(t)

	rec := do(t, h, http.MethodPost, "/viz/pointer", `{"kind":"wiggle","x":1,"y":2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "kind failed oneof")

	rec = do(t, h, http.MethodPost, "/viz/pointer", `{"kind":"down","x":-5000,"y":-5000}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"phase":"idle"}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/viz/resize", `{"width":0,"height":10}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/viz/resize", `{"width":640,"height":480}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
