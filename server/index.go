package server

import (
	"fmt"
	"html"
	"net/http"
)

// handleIndex renders the main page: the live frame, a question box and the
// dataset upload form.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ds, snap := s.current()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	viz := `<p>No scene is mounted; the graph is available at <a href="/api/graph">/api/graph</a>.</p>`
	if s.scene != nil {
		viz = `<img id="frame" src="/viz/frame.svg" alt="graph">`
	}

	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>specgraph</title>
  <style>
    body { font-family: 'Helvetica Neue', Arial, sans-serif; margin: 0; padding: 20px; background: #f5f5f5; color: #333; }
    .container { max-width: 1240px; margin: 0 auto; background: white; padding: 30px; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); }
    h1 { margin-top: 0; border-bottom: 2px solid #eee; padding-bottom: 10px; }
    .section { margin: 20px 0; padding: 20px; background: #f9f9f9; border-radius: 4px; }
    .btn { background: #4285f4; color: white; border: none; padding: 10px 20px; border-radius: 4px; cursor: pointer; font-size: 16px; }
    input { padding: 8px; font-size: 16px; border: 1px solid #ddd; border-radius: 4px; margin-right: 10px; }
    #answer { white-space: pre-wrap; }
    #frame { border: 1px solid #eee; user-select: none; }
  </style>
</head>
<body>
  <div class="container">
    <h1>%s <small>(%d nodes, %d links)</small></h1>
    <div class="section">%s</div>
    <div class="section">
      <form id="ask">
        <input id="q" name="query" size="60" placeholder="Ask about the change specification">
        <button type="submit" class="btn">Ask</button>
      </form>
      <div id="answer"></div>
    </div>
    <div class="section">
      <form action="/api/upload" method="post" enctype="multipart/form-data">
        <input type="file" name="dataFile" accept=".json,.csv" required>
        <button type="submit" class="btn">Replace dataset</button>
      </form>
    </div>
  </div>
  <script>
    const img = document.getElementById('frame');
    const post = (path, body) => fetch(path, {method: 'POST', headers: {'Content-Type': 'application/json'}, body: JSON.stringify(body)});
    if (img) {
      setInterval(() => { img.src = '/viz/frame.svg?t=' + Date.now(); }, 100);
      const at = (e, kind) => { const r = img.getBoundingClientRect(); post('/viz/pointer', {kind: kind, x: e.clientX - r.left, y: e.clientY - r.top}); };
      img.addEventListener('pointerdown', e => { e.preventDefault(); at(e, 'down'); });
      img.addEventListener('pointermove', e => at(e, 'move'));
      img.addEventListener('pointerup', e => at(e, 'up'));
      img.addEventListener('pointercancel', e => at(e, 'cancel'));
    }
    document.getElementById('ask').addEventListener('submit', async e => {
      e.preventDefault();
      const q = document.getElementById('q').value;
      const res = await post(img ? '/viz/query' : '/api/query', {query: q});
      const body = await res.json();
      document.getElementById('answer').textContent = body.answer;
    });
  </script>
</body>
</html>
`, html.EscapeString(ds.Name), len(snap.Nodes), len(snap.Links), viz)
}
