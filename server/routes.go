package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/potterlabs/mockapi/apierror"
	"github.com/potterlabs/mockapi/fixtures"
	"github.com/potterlabs/mockapi/openapi"
	"github.com/potterlabs/mockapi/registry"
	"github.com/potterlabs/mockapi/stubgen"
)

// StatusSucceeded is filled into fetched jobs that carry no status.
const StatusSucceeded = "succeeded"

// Epoch is filled into fetched scripts that carry no creation time.
const Epoch = "1970-01-01T00:00:00Z"

// filler sets a key on a generated object when it is absent.
type filler func(obj *stubgen.Object, vars map[string]string)

func fillID(obj *stubgen.Object, vars map[string]string) {
	obj.SetDefault("id", vars["id"])
}

func fillStatus(obj *stubgen.Object, _ map[string]string) {
	obj.SetDefault("status", StatusSucceeded)
}

func fillCreatedAt(obj *stubgen.Object, _ map[string]string) {
	obj.SetDefault("created_at", Epoch)
}

func fillSections(obj *stubgen.Object, _ map[string]string) {
	obj.SetDefault("sections", []any{})
}

// endpoint describes one mocked operation.
//
// A POST with a request ref validates the body first. The response is the
// example named by example when its file exists, else body when set, else a
// stub of the response schema with fill applied.
type endpoint struct {
	method   string
	path     string
	status   int
	request  registry.Ref
	example  string
	response registry.Ref
	body     func(vars map[string]string) any
	fill     []filler
}

// group is a set of endpoints sharing a path prefix and an examples
// directory.
type group struct {
	prefix    string
	examples  *fixtures.Examples
	endpoints []endpoint
}

func emptyItems(map[string]string) any {
	return map[string]any{"items": []any{}}
}

func emptyList(map[string]string) any {
	return []any{}
}

func renderStarted(vars map[string]string) any {
	obj := stubgen.NewObject()
	obj.Set("message", "Storyboard rendering started")
	obj.Set("storyboard_id", vars["id"])
	return obj
}

func (s *Server) slideshowGroup() group {
	file := registry.File
	job := []filler{fillID, fillStatus}

	return group{
		prefix:   "/v1",
		examples: s.slideshowExamples,
		endpoints: []endpoint{
			{method: http.MethodPost, path: "/scripts", status: http.StatusCreated, request: file("ScriptCreate.json"), example: "scripts.create", response: file("Script.json")},
			{method: http.MethodGet, path: "/scripts", status: http.StatusOK, body: emptyItems},
			{method: http.MethodGet, path: "/scripts/{id}", status: http.StatusOK, response: file("Script.json"), fill: []filler{fillID, fillStatus, fillCreatedAt, fillSections}},

			{method: http.MethodPost, path: "/beats", status: http.StatusCreated, request: file("BeatsCreate.json"), example: "beats.create", response: file("Beats.json")},
			{method: http.MethodGet, path: "/beats", status: http.StatusOK, body: emptyItems},

			{method: http.MethodPost, path: "/images", status: http.StatusAccepted, request: file("ImageCreate.json"), example: "images.create", response: file("ImageJob.json")},
			{method: http.MethodGet, path: "/images", status: http.StatusOK, body: emptyItems},
			{method: http.MethodGet, path: "/images/{id}", status: http.StatusOK, response: file("ImageJob.json"), fill: job},

			{method: http.MethodPost, path: "/voiceovers", status: http.StatusAccepted, request: file("VoiceoverCreate.json"), example: "voiceovers.create", response: file("VoiceoverJob.json")},
			{method: http.MethodGet, path: "/voiceovers", status: http.StatusOK, body: emptyItems},
			{method: http.MethodGet, path: "/voiceovers/{id}", status: http.StatusOK, response: file("VoiceoverJob.json"), fill: job},

			{method: http.MethodPost, path: "/background-music", status: http.StatusAccepted, request: file("BackgroundMusicCreate.json"), example: "background-music.create", response: file("BackgroundMusicJob.json")},
			{method: http.MethodGet, path: "/background-music/{id}", status: http.StatusOK, response: file("BackgroundMusicJob.json"), fill: job},

			{method: http.MethodPost, path: "/slideshows", status: http.StatusCreated, request: file("SlideshowCreate.json"), example: "slideshows.create", response: file("Slideshow.json")},
			{method: http.MethodGet, path: "/slideshows", status: http.StatusOK, body: emptyItems},
			{method: http.MethodGet, path: "/slideshows/{id}", status: http.StatusOK, response: file("Slideshow.json"), fill: []filler{fillID}},

			{method: http.MethodPost, path: "/slideshow-videos", status: http.StatusAccepted, request: file("SlideshowVideoCreate.json"), example: "slideshow-videos.create", response: file("SlideshowVideoJob.json")},
			{method: http.MethodGet, path: "/slideshow-videos/{id}", status: http.StatusOK, response: file("SlideshowVideoJob.json"), fill: job},

			{method: http.MethodGet, path: "/events", status: http.StatusOK, body: func(map[string]string) any { return map[string]any{"events": []any{}} }},
			{method: http.MethodGet, path: "/jobs/{id}/logs", status: http.StatusOK, body: func(map[string]string) any { return map[string]any{"lines": []any{}} }},

			{method: http.MethodGet, path: "/voices", status: http.StatusOK, body: emptyList},
			{method: http.MethodPost, path: "/voices", status: http.StatusCreated, request: file("VoiceCreate.json"), response: file("Voice.json")},

			{method: http.MethodPost, path: "/assets", status: http.StatusCreated, request: file("AssetCreate.json"), response: file("Asset.json")},
			{method: http.MethodGet, path: "/assets/{id}", status: http.StatusOK, response: file("Asset.json"), fill: []filler{fillID}},
		},
	}
}

func (s *Server) storyGroup() group {
	component := registry.Component
	job := []filler{fillID, fillStatus}

	return group{
		prefix:   "/v1",
		examples: s.storyExamples,
		endpoints: []endpoint{
			{method: http.MethodPost, path: "/videos", status: http.StatusAccepted, request: component("VideoCreateRequest"), example: "video.create", response: component("VideoJob")},
			{method: http.MethodGet, path: "/videos/{id}", status: http.StatusOK, response: component("VideoJob"), fill: job},

			{method: http.MethodPost, path: "/storyboards", status: http.StatusCreated, request: component("StoryboardCreateRequest"), example: "storyboard.create", response: component("Storyboard")},
			{method: http.MethodGet, path: "/storyboards/{id}", status: http.StatusOK, response: component("Storyboard"), fill: job},
			{method: http.MethodPost, path: "/storyboards/{id}/render", status: http.StatusAccepted, request: component("StoryboardRenderRequest"), body: renderStarted},

			{method: http.MethodPost, path: "/stories", status: http.StatusAccepted, request: component("StoryCreateRequest"), example: "story.create", response: component("StoryJob")},
			{method: http.MethodGet, path: "/stories/{id}", status: http.StatusOK, response: component("StoryJob"), fill: job},
			{method: http.MethodGet, path: "/stories/{id}/videos", status: http.StatusOK, body: emptyItems},
		},
	}
}

// routes builds the router. Unknown paths and methods answer with JSON
// not_found and method_not_allowed bodies.
func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = apierror.Handler(apierror.KindNotFound)
	r.MethodNotAllowedHandler = apierror.Handler(apierror.KindMethodNotAllowed)

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	r.HandleFunc("/providers", s.listProviders).Methods(http.MethodGet)
	r.HandleFunc("/providers/{id}", s.getProvider).Methods(http.MethodGet)
	r.HandleFunc("/providers/{id}/capabilities", s.listCapabilities).Methods(http.MethodGet)

	for _, g := range []group{s.slideshowGroup(), s.storyGroup()} {
		for _, e := range g.endpoints {
			r.Handle(g.prefix+e.path, s.serveEndpoint(g.examples, e)).Methods(e.method)
		}
	}

	if s.cfg.Server.Docs {
		openapi.Handle(r, "/docs", s.cfg.StoryOpenAPIPath(), &openapi.HandleConfig{
			Title:        "Mock API",
			JSONFilename: "/openapi.json",
			YAMLFilename: "/openapi.yaml",
		})
	}

	return r
}
