package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/potterlabs/mockapi/config"
	"github.com/potterlabs/mockapi/openapi"
	"github.com/potterlabs/mockapi/stubgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixedNow = "2025-01-02T03:04:05Z"

func testGenerator() *stubgen.Generator {
	return stubgen.New(stubgen.WithClock(func() time.Time {
		return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	}))
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.RepoRoot = "../data"
	cfg.Watch.Enabled = false
	for _, m := range mutate {
		m(cfg)
	}

	srv, err := New(cfg,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithGenerator(testGenerator()),
	)
	require.NoError(t, err)

	return srv
}

func do(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	return w
}

func TestNewInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Listen = ""

	_, err := New(cfg)
	assert.ErrorContains(t, err, "server.listen")
}

func TestHealth(t *testing.T) {
	w := do(newTestServer(t).Handler(), http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestProviders(t *testing.T) {
	h := newTestServer(t).Handler()

	t.Run("list", func(t *testing.T) {
		w := do(h, http.MethodGet, "/providers", "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var providers []map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &providers))
		assert.Len(t, providers, 4)
		assert.Equal(t, "active", providers[1]["status"])
	})

	t.Run("get", func(t *testing.T) {
		w := do(h, http.MethodGet, "/providers/openrouter", "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var provider map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &provider))
		assert.Equal(t, "openrouter", provider["id"])
	})

	t.Run("optional fields are null", func(t *testing.T) {
		w := do(h, http.MethodGet, "/providers/runway", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"id":"runway","name":"Runway","category":"video","description":null,"url":null,"status":"inactive"}`, w.Body.String())
	})

	t.Run("not found", func(t *testing.T) {
		w := do(h, http.MethodGet, "/providers/non-existent-provider", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"error":"not_found","message":"Provider 'non-existent-provider' not found"}`, w.Body.String())
	})

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantIDs  []string
	}{
		{name: "capabilities subset", path: "/providers/openrouter/capabilities", wantCode: http.StatusOK, wantIDs: []string{"text-gen"}},
		{name: "capabilities all", path: "/providers/replicate/capabilities", wantCode: http.StatusOK, wantIDs: []string{"text-gen", "image-gen", "tts", "video-gen"}},
		{name: "capabilities unknown provider", path: "/providers/non-existent-provider/capabilities", wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(h, http.MethodGet, tt.path, "", nil)
			require.Equal(t, tt.wantCode, w.Code)

			if tt.wantIDs == nil {
				assert.Contains(t, w.Body.String(), `"not_found"`)
				return
			}

			var caps []map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &caps))

			ids := make([]string, 0, len(caps))
			for _, c := range caps {
				ids = append(ids, c["id"].(string))
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestCreateEndpoints(t *testing.T) {
	h := newTestServer(t).Handler()

	scriptExample, err := os.ReadFile("../data/slideshow/examples/scripts.create.response.json")
	require.NoError(t, err)
	storyExample, err := os.ReadFile("../data/story/examples/story.create.response.json")
	require.NoError(t, err)

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
		wantBody string
	}{
		{
			name:     "script served from example",
			path:     "/v1/scripts",
			body:     `{"topic":"A week in Lisbon","tone":"playful"}`,
			wantCode: http.StatusCreated,
			wantBody: string(scriptExample),
		},
		{
			name:     "image job stub",
			path:     "/v1/images",
			body:     `{"prompt":"a cat on a tram","count":2}`,
			wantCode: http.StatusAccepted,
			wantBody: `{"id":"img_01HZX5","status":"queued","images":[],"progress":0,"created_at":"` + fixedNow + `"}`,
		},
		{
			name:     "voice stub keeps declared order",
			path:     "/v1/voices",
			body:     `{"name":"Narrator","provider":"elevenlabs","labels":{"accent":"british"}}`,
			wantCode: http.StatusCreated,
			wantBody: `{"id":"voice_01HZXA","name":"Narrator","provider":"elevenlabs","preview_available":false}`,
		},
		{
			name:     "story served from example",
			path:     "/v1/stories",
			body:     `{"premise":"A lighthouse keeper finds a message in a bottle"}`,
			wantCode: http.StatusAccepted,
			wantBody: string(storyExample),
		},
		{
			name:     "video job stub from component",
			path:     "/v1/videos",
			body:     `{"prompt":"harbour","aspect_ratio":"16:9","seed":null}`,
			wantCode: http.StatusAccepted,
			wantBody: `{"id":"vid_01HZXC","status":"queued","prompt":"A drone shot over a foggy harbour at dawn","duration_seconds":8,"progress":0,"created_at":"` + fixedNow + `"}`,
		},
		{
			name:     "storyboard stub",
			path:     "/v1/storyboards",
			body:     `{"story_id":"sty_1"}`,
			wantCode: http.StatusCreated,
			wantBody: `{"id":"sb_01HZXD","status":"queued","story_id":"sty_01HZXE","scenes":[],"created_at":"` + fixedNow + `"}`,
		},
		{
			name:     "storyboard render",
			path:     "/v1/storyboards/sb_42/render",
			body:     `{}`,
			wantCode: http.StatusAccepted,
			wantBody: `{"message":"Storyboard rendering started","storyboard_id":"sb_42"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(h, http.MethodPost, tt.path, tt.body, map[string]string{"Idempotency-Key": "k1"})

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestGetEndpoints(t *testing.T) {
	h := newTestServer(t).Handler()

	tests := []struct {
		name     string
		path     string
		wantBody string
	}{
		{name: "list scripts", path: "/v1/scripts", wantBody: `{"items":[]}`},
		{name: "list beats", path: "/v1/beats", wantBody: `{"items":[]}`},
		{name: "list images", path: "/v1/images", wantBody: `{"items":[]}`},
		{name: "events", path: "/v1/events", wantBody: `{"events":[]}`},
		{name: "job logs", path: "/v1/jobs/job_1/logs", wantBody: `{"lines":[]}`},
		{name: "voices", path: "/v1/voices", wantBody: `[]`},
		{name: "story videos", path: "/v1/stories/sty_1/videos", wantBody: `{"items":[]}`},
		{
			name:     "script keeps generated values",
			path:     "/v1/scripts/scr_9",
			wantBody: `{"id":"scr_01HZX3","status":"queued","topic":"A week in Lisbon","sections":[],"created_at":"` + fixedNow + `"}`,
		},
		{
			name:     "asset",
			path:     "/v1/assets/ast_9",
			wantBody: `{"id":"ast_01HZXB","kind":"image","url":"https://assets.example.com/ast_01HZXB","size_bytes":0,"created_at":"` + fixedNow + `"}`,
		},
		{
			name:     "story job",
			path:     "/v1/stories/sty_9",
			wantBody: `{"id":"sty_01HZXE","status":"queued","premise":"A lighthouse keeper finds a message in a bottle","chapters":[],"created_at":"` + fixedNow + `"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(h, http.MethodGet, tt.path, "", nil)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestGetDefaultsFillAbsentKeys(t *testing.T) {
	root := t.TempDir()
	schemas := filepath.Join(root, "slideshow", "schemas")
	require.NoError(t, os.MkdirAll(schemas, 0o755))

	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(schemas, name), []byte(content), 0o644))
	}
	write("Script.json", `{"type":"object","required":["topic"],"properties":{"topic":{"type":"string"}}}`)
	write("ImageJob.json", `{"type":"object","required":["progress"],"properties":{"progress":{"type":"number"}}}`)
	write("Slideshow.json", `{"type":"object","required":["status"],"properties":{"status":{"enum":["draft"]}}}`)

	h := newTestServer(t, func(cfg *config.Config) { cfg.RepoRoot = root }).Handler()

	tests := []struct {
		path     string
		wantBody string
	}{
		{path: "/v1/scripts/scr_1", wantBody: `{"topic":"string","id":"scr_1","status":"succeeded","created_at":"1970-01-01T00:00:00Z","sections":[]}`},
		{path: "/v1/images/img_1", wantBody: `{"progress":0,"id":"img_1","status":"succeeded"}`},
		{path: "/v1/slideshows/ss_1", wantBody: `{"status":"draft","id":"ss_1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := do(h, http.MethodGet, tt.path, "", nil)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestValidationErrors(t *testing.T) {
	h := newTestServer(t).Handler()

	type detail struct {
		Error      string   `json:"error"`
		Message    string   `json:"message"`
		Path       []any    `json:"path"`
		SchemaPath []string `json:"schema_path"`
	}

	tests := []struct {
		name           string
		path           string
		body           string
		wantMessage    string
		wantPath       []any
		wantSchemaPath []string
	}{
		{
			name:           "missing required",
			path:           "/v1/scripts",
			body:           `{}`,
			wantMessage:    "missing properties: 'topic'",
			wantPath:       []any{},
			wantSchemaPath: []string{"required"},
		},
		{
			name:           "unknown property",
			path:           "/v1/scripts",
			body:           `{"topic":"x","mood":"sunny"}`,
			wantPath:       []any{},
			wantSchemaPath: []string{"additionalProperties"},
		},
		{
			name:           "out of range",
			path:           "/v1/images",
			body:           `{"prompt":"x","count":20}`,
			wantPath:       []any{"count"},
			wantSchemaPath: []string{"properties", "count", "maximum"},
		},
		{
			name:           "component min length",
			path:           "/v1/videos",
			body:           `{"prompt":""}`,
			wantPath:       []any{"prompt"},
			wantSchemaPath: []string{"properties", "prompt", "minLength"},
		},
		{
			name:           "nested array index",
			path:           "/v1/stories",
			body:           `{"premise":"p","characters":[{"name":"a"},{"role":"hero"}]}`,
			wantPath:       []any{"characters", float64(1)},
			wantSchemaPath: []string{"properties", "characters", "items", "required"},
		},
		{
			name:           "array body",
			path:           "/v1/scripts",
			body:           `[1]`,
			wantMessage:    "request body must be a JSON object, got array",
			wantPath:       []any{},
			wantSchemaPath: []string{},
		},
		{
			name:           "malformed body",
			path:           "/v1/scripts",
			body:           `{"topic":`,
			wantMessage:    "request body is not valid JSON",
			wantPath:       []any{},
			wantSchemaPath: []string{},
		},
		{
			name:           "empty body",
			path:           "/v1/voices",
			body:           ``,
			wantMessage:    "request body is required",
			wantPath:       []any{},
			wantSchemaPath: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(h, http.MethodPost, tt.path, tt.body, nil)
			require.Equal(t, http.StatusUnprocessableEntity, w.Code)

			var body struct {
				Detail detail `json:"detail"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

			assert.Equal(t, "unprocessable_entity", body.Detail.Error)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, body.Detail.Message)
			}
			assert.Equal(t, tt.wantPath, body.Detail.Path)
			assert.Equal(t, tt.wantSchemaPath, body.Detail.SchemaPath)
		})
	}
}

func TestRoutingErrors(t *testing.T) {
	h := newTestServer(t).Handler()

	t.Run("unknown path", func(t *testing.T) {
		w := do(h, http.MethodGet, "/v1/unknown", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), `"error":"not_found"`)
	})

	t.Run("unknown method", func(t *testing.T) {
		w := do(h, http.MethodDelete, "/v1/scripts", "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		assert.Contains(t, w.Body.String(), `"error":"method_not_allowed"`)
	})
}

func TestMissingSchemaIsInternalError(t *testing.T) {
	h := newTestServer(t, func(cfg *config.Config) { cfg.RepoRoot = t.TempDir() }).Handler()

	w := do(h, http.MethodGet, "/v1/scripts/scr_1", "", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal_error","message":"Internal Server Error"}`, w.Body.String())
}

func TestMiddleware(t *testing.T) {
	t.Run("body size limit", func(t *testing.T) {
		h := newTestServer(t, func(cfg *config.Config) { cfg.Server.MaxBodyBytes = 16 }).Handler()

		w := do(h, http.MethodPost, "/v1/scripts", `{"topic":"a rather long topic"}`, nil)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), `"payload_too_large"`)
	})

	t.Run("require json", func(t *testing.T) {
		h := newTestServer(t, func(cfg *config.Config) { cfg.Server.RequireJSON = true }).Handler()

		w := do(h, http.MethodPost, "/v1/scripts", `{"topic":"x"}`, map[string]string{"Content-Type": "text/plain"})
		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

		w = do(h, http.MethodPost, "/v1/scripts", `{"topic":"x"}`, nil)
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("request id", func(t *testing.T) {
		h := newTestServer(t).Handler()

		w := do(h, http.MethodGet, "/health", "", map[string]string{"X-Request-ID": "req-abc"})
		assert.Equal(t, "req-abc", w.Header().Get("X-Request-ID"))

		w = do(h, http.MethodGet, "/health", "", nil)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("cors preflight", func(t *testing.T) {
		h := newTestServer(t).Handler()

		w := do(h, http.MethodOptions, "/v1/scripts", "", map[string]string{
			"Origin":                        "http://localhost:3000",
			"Access-Control-Request-Method": http.MethodPost,
		})
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "POST,GET", w.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("cors disabled", func(t *testing.T) {
		h := newTestServer(t, func(cfg *config.Config) { cfg.CORS.Enabled = false }).Handler()

		w := do(h, http.MethodOptions, "/v1/scripts", "", map[string]string{
			"Origin":                        "http://localhost:3000",
			"Access-Control-Request-Method": http.MethodPost,
		})
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRoutesCoverOpenAPIPaths(t *testing.T) {
	srv := newTestServer(t)

	doc, err := openapi.Load("../data/story/openapi-video-story.patch.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, doc.Paths)

	for path, item := range doc.Paths {
		concrete := strings.ReplaceAll(path, "{id}", "x1")

		for i := 0; i+1 < len(item.Content); i += 2 {
			method := strings.ToUpper(item.Content[i].Value)

			req := httptest.NewRequest(method, concrete, nil)
			var match mux.RouteMatch
			srv.router.Match(req, &match)
			assert.NoError(t, match.MatchErr, "%s %s", method, path)
			assert.NotNil(t, match.Route, "%s %s", method, path)
		}
	}
}

func TestDocs(t *testing.T) {
	h := newTestServer(t).Handler()

	w := do(h, http.MethodGet, "/openapi.json", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var doc struct {
		Info struct {
			Title string `json:"title"`
		} `json:"info"`
		Paths map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "Potterlabs Video and Story API", doc.Info.Title)
	assert.Contains(t, doc.Paths, "/v1/stories")

	w = do(h, http.MethodGet, "/openapi.yaml", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi: 3.1.0")

	w = do(h, http.MethodGet, "/docs", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<title>Mock API</title>")

	disabled := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.Docs = false
	}).Handler()
	assert.Equal(t, http.StatusNotFound, do(disabled, http.MethodGet, "/openapi.json", "", nil).Code)
}

func TestServe(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.MaxConnections = 4
		cfg.Server.ShutdownTimeout = time.Second
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(body))

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
