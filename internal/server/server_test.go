package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/circuitsolver/internal/config"
	"github.com/edp1096/circuitsolver/internal/store"
	"github.com/edp1096/circuitsolver/pkg/netlist"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const divider = `{
  "title": "divider",
  "vertices": [{"name": "gnd", "voltage": 0}, {"name": "v1"}, {"name": "v2"}],
  "edges": [
    {"name": "vs", "from": "gnd", "to": "v1", "type": "voltage_source", "params": {"v": 5}},
    {"name": "r1", "from": "v1", "to": "v2", "type": "resistor", "params": {"r": 2}},
    {"name": "r2", "from": "v2", "to": "gnd", "type": "resistor", "params": {"r": 3}}
  ]
}`

func setupServer(t *testing.T, withStore bool) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Analysis.MaxRetries = 5
	cfg.Analysis.Parallelism = 2
	cfg.Server.MaxBodyBytes = 4096

	var st *store.Store
	if withStore {
		var err error
		st, err = store.New(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
	}
	return New(cfg, st, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(s *Server, method, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := setupServer(t, false)
	w := do(s, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestSolveJSON(t *testing.T) {
	s := setupServer(t, true)
	w := do(s, http.MethodPost, "/v1/solve", "application/json", divider)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Solve-Id"))

	doc, err := netlist.Decode(netlist.FormatJSON, w.Body.Bytes())
	require.NoError(t, err)
	for _, v := range doc.Vertices {
		require.NotNil(t, v.Voltage, v.Name)
		if v.Name == "v2" {
			assert.InEpsilon(t, 3.0, *v.Voltage, 1e-4)
		}
	}
}

func TestSolveSpiceByQuery(t *testing.T) {
	s := setupServer(t, false)
	w := do(s, http.MethodPost, "/v1/solve?format=spice", "", "* d\nVs a 0 5\nR1 a 0 5\n.op\n")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), ".pin a ")
	assert.Empty(t, w.Header().Get("X-Solve-Id"))
}

func TestSolveErrors(t *testing.T) {
	s := setupServer(t, false)
	tests := []struct {
		name string
		path string
		body string
		want int
		code string
	}{
		{"bad format", "/v1/solve?format=xml", divider, http.StatusBadRequest, "bad_format"},
		{"garbage", "/v1/solve", "{", http.StatusBadRequest, "decode error"},
		{"dangling edge", "/v1/solve", `{"vertices": [{"name": "a"}], "edges": [{"name": "x", "from": "a", "to": "b", "type": "resistor"}]}`, http.StatusUnprocessableEntity, "invalid graph"},
		{"no solution", "/v1/solve?format=spice", "* t\nVa a 0 5\nVb a 0 3\n", http.StatusUnprocessableEntity, "no solution"},
		{"too large", "/v1/solve", strings.Repeat(" ", 5000), http.StatusRequestEntityTooLarge, "too_large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(s, http.MethodPost, tt.path, "", tt.body)
			assert.Equal(t, tt.want, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestSweep(t *testing.T) {
	s := setupServer(t, false)
	w := do(s, http.MethodPost, "/v1/sweep", "text/plain", "* s\nVs in 0 DC 1\nR1 in out 2\nR2 out 0 3\n.dc Vs 0 2 1\n")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Series map[string][]float64 `json:"series"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []float64{0, 1, 2}, resp.Series["SWEEP1"])
	assert.Len(t, resp.Series["V(out)"], 3)

	w = do(s, http.MethodPost, "/v1/sweep", "application/json", divider)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(s, http.MethodPost, "/v1/sweep", "text/plain", "* s\nVs in 0 DC 1\nR1 in out 2\nR2 out 0 3\n.dc Vs 0 1 1e-12\n")
	require.Equal(t, http.StatusBadRequest, w.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, "sweep_too_large", errResp.Code)
}

func TestHistory(t *testing.T) {
	s := setupServer(t, true)

	ok := do(s, http.MethodPost, "/v1/solve", "application/json", divider)
	require.Equal(t, http.StatusOK, ok.Code)
	id := ok.Header().Get("X-Solve-Id")
	bad := do(s, http.MethodPost, "/v1/solve", "application/json", "{")
	require.Equal(t, http.StatusBadRequest, bad.Code)

	w := do(s, http.MethodGet, "/v1/solves", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Solves []Summary `json:"solves"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Solves, 2)

	statuses := []string{list.Solves[0].Status, list.Solves[1].Status}
	assert.ElementsMatch(t, []string{"ok", "decode error"}, statuses)

	w = do(s, http.MethodGet, "/v1/solves/"+id, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var detail Detail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, "divider", detail.Title)
	assert.Equal(t, "ok", detail.Status)
	assert.Equal(t, divider, detail.Input)
	assert.Contains(t, detail.Output, `"voltage"`)

	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/v1/solves/nope", "", "").Code)
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/v1/solves/00000000-0000-0000-0000-000000000001", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/v1/solves?limit=0", "", "").Code)
}

func TestHistoryDisabled(t *testing.T) {
	s := setupServer(t, false)
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/v1/solves", "", "").Code)
}

func TestMetrics(t *testing.T) {
	s := setupServer(t, false)
	require.Equal(t, http.StatusOK, do(s, http.MethodPost, "/v1/solve", "application/json", divider).Code)
	do(s, http.MethodPost, "/v1/solve", "application/json", "{")

	w := do(s, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `circuitsolver_api_requests_total{code="ok",route="solve"} 1`)
	assert.Contains(t, body, `circuitsolver_api_requests_total{code="decode error",route="solve"} 1`)
	assert.Contains(t, body, "circuitsolver_api_discontinuities_count 1")
	assert.Contains(t, body, "circuitsolver_solve_total", "solver metrics are served too")
}
