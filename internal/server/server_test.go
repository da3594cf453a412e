package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sanonone/embedreduce/internal/config"
	"github.com/sanonone/embedreduce/pkg/reduce"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	reducer, err := reduce.NewService(reduce.Options{
		DefaultComponents: cfg.Reduce.DefaultComponents,
		MaxConcurrent:     cfg.Reduce.MaxConcurrent,
	})
	require.NoError(t, err)
	s, err := NewServer(cfg, reducer)
	require.NoError(t, err)
	return s
}

func postPCA(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/pca", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	require.Len(t, body, 1)
	msg, ok := body["error"]
	require.True(t, ok, rec.Body.String())
	return msg
}

func TestPCAEndToEnd(t *testing.T) {
	s := newTestServer(t, nil)

	rec := postPCA(t, s.Handler(), `{"embeddings": [[1,2,3],[4,5,6],[7,8,10]], "n_components": 2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	var reduced [][]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reduced))
	require.Len(t, reduced, 3)
	col0 := make([]float64, 3)
	col1 := make([]float64, 3)
	for i, row := range reduced {
		require.Len(t, row, 2)
		col0[i], col1[i] = row[0], row[1]
	}
	assert.GreaterOrEqual(t, stat.Variance(col0, nil), stat.Variance(col1, nil))
}

func TestPCAIgnoresUnknownFields(t *testing.T) {
	s := newTestServer(t, nil)
	rec := postPCA(t, s.Handler(), `{"embeddings": [[1,2],[3,5],[6,6]], "n_components": 1, "output_dim": 1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestPCARejects(t *testing.T) {
	cases := map[string]struct {
		body    string
		message string
	}{
		"ragged":             {`{"embeddings": [[1,2],[3]]}`, "rectangular"},
		"default too large":  {`{"embeddings": [[1,2,3],[4,5,6]]}`, "n_components=256"},
		"empty list":         {`{"embeddings": []}`, "invalid request"},
		"missing embeddings": {`{"n_components": 2}`, "invalid request"},
		"zero components":    {`{"embeddings": [[1,2],[3,4]], "n_components": 0}`, "invalid request"},
		"fractional":         {`{"embeddings": [[1,2],[3,4]], "n_components": 1.5}`, "invalid request"},
		"string cell":        {`{"embeddings": [[1,"x"],[3,4]], "n_components": 1}`, "invalid request"},
		"malformed":          {`{"embeddings": [[1,2]`, "malformed JSON"},
		"empty body":         {``, "request body is empty"},
	}
	s := newTestServer(t, nil)
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := postPCA(t, s.Handler(), tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, errorMessage(t, rec), tc.message)
		})
	}
}

func TestPCALenientStatus(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.Reduce.ErrorStatus = config.StatusLenient })

	rec := postPCA(t, s.Handler(), `{"embeddings": [[1,2],[3]]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "rectangular")
}

func TestPCAContentType(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/pca", strings.NewReader(`{"embeddings": [[1]], "n_components": 1}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "Content-Type")

	req = httptest.NewRequest(http.MethodPost, "/pca", strings.NewReader(`{"embeddings": [[1]], "n_components": 1}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestPCABodyTooLarge(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.HTTP.MaxBodyBytes = 32 })

	rec := postPCA(t, s.Handler(), `{"embeddings": [[1,2,3],[4,5,6],[7,8,10]], "n_components": 2}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	errorMessage(t, rec)
}

func TestPCAMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/pca", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/pca", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)

	rec = postPCA(t, s.Handler(), `{"embeddings": [[1,2],[3]]}`)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"), "no Origin, no CORS headers")
}

func TestCORSRestrictedOrigin(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.CORS.AllowedOrigins = []string{"https://app.example.com"}
	})

	req := httptest.NewRequest(http.MethodPost, "/pca", strings.NewReader(`{"embeddings": [[1,2],[3,4]], "n_components": 1}`))
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodPost, "/pca", strings.NewReader(`{"embeddings": [[1,2],[3,4]], "n_components": 1}`))
	req.Header.Set("Origin", "https://app.example.com")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDEcho(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/pca", strings.NewReader(`{"embeddings": [[1,2],[3,4]], "n_components": 1}`))
	req.Header.Set(requestIDHeader, "trace-42")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "trace-42", rec.Header().Get(requestIDHeader))
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.Reduce.MaxConcurrent = 3 })
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var h healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 256, h.DefaultComponents)
	assert.Equal(t, 3, h.MaxConcurrent)
	assert.Positive(t, h.CPU.LogicalCores)
}

func TestSchemaEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/pca/schema", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/schema+json", rec.Header().Get("Content-Type"))
	var schema map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &schema))
	assert.Equal(t, "object", schema["type"])
	assert.Contains(t, schema["required"], "embeddings")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	postPCA(t, s.Handler(), `{"embeddings": [[1,2],[3,4]], "n_components": 1}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "embedreduce_http_requests_total")
	assert.Contains(t, body, "embedreduce_reductions_total")
}

func TestDisabledSurfaces(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Metrics.Enabled = false
		c.MCP.Enabled = false
	})
	for _, path := range []string{"/metrics", "/mcp"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/pca", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal Server Error", errorMessage(t, rec))
}

func TestMCPOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	cs, err := client.Connect(t.Context(), &mcp.StreamableClientTransport{Endpoint: ts.URL + "/mcp"}, nil)
	require.NoError(t, err)
	defer cs.Close()

	res, err := cs.CallTool(t.Context(), &mcp.CallToolParams{
		Name: "reduce_embeddings",
		Arguments: map[string]any{
			"embeddings":   [][]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, 10}},
			"n_components": 2,
		},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/pca", routeLabel("POST /pca"))
	assert.Equal(t, "/mcp", routeLabel("/mcp"))
	assert.Equal(t, "unmatched", routeLabel(""))
}

func TestIsJSONContentType(t *testing.T) {
	for header, want := range map[string]bool{
		"":                                true,
		"application/json":                true,
		"application/json; charset=utf-8": true,
		"application/vnd.api+json":        true,
		"text/plain":                      false,
		"multipart/form-data; boundary=x": false,
		"bogus;;":                         false,
	} {
		assert.Equal(t, want, isJSONContentType(header), header)
	}
}
