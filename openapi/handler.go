package openapi

import (
	"bytes"
	"fmt"
	"html"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/potterlabs/mockapi/apierror"
	"github.com/potterlabs/mockapi/schema"
	"gopkg.in/yaml.v3"
)

// HandleConfig configures the endpoints registered by Handle.
type HandleConfig struct {
	// Title overrides the HTML page title (default: info.title of the
	// document, else "API docs").
	Title string

	// JSONFilename is the path for the JSON endpoint (default:
	// "openapi.json"). Set to "-" to disable.
	//
	// Relative paths are joined with the base path; absolute paths
	// (starting with "/") are used as-is.
	JSONFilename string

	// YAMLFilename is the path for the YAML endpoint (default:
	// "openapi.yaml"). Set to "-" to disable.
	YAMLFilename string

	// DisableDocs disables the Swagger UI page.
	DisableDocs bool
}

func (cfg HandleConfig) jsonFilename() string {
	if cfg.JSONFilename == "" {
		return "openapi.json"
	}
	return cfg.JSONFilename
}

func (cfg HandleConfig) yamlFilename() string {
	if cfg.YAMLFilename == "" {
		return "openapi.yaml"
	}
	return cfg.YAMLFilename
}

// resolvePath returns the full route path for a filename.
func resolvePath(basePath, filename string) string {
	if strings.HasPrefix(filename, "/") {
		return filename
	}
	return basePath + "/" + filename
}

// Handle registers GET endpoints serving the document at path:
//
//	<basePath>/            Swagger UI (unless DisableDocs)
//	<JSONFilename path>    the document as JSON (unless "-")
//	<YAMLFilename path>    the document as YAML (unless "-")
//
// The file is read on every request so edits show up without a restart.
// A document that fails to load is reported as internal_error.
func Handle(r *mux.Router, basePath, path string, cfg *HandleConfig) {
	if cfg == nil {
		cfg = &HandleConfig{}
	}
	basePath = strings.TrimRight(basePath, "/")

	var specURL string

	if name := cfg.yamlFilename(); name != "-" {
		specURL = resolvePath(basePath, name)
		r.HandleFunc(specURL, func(w http.ResponseWriter, _ *http.Request) {
			doc, err := Load(path)
			if err != nil {
				apierror.Write(w, apierror.Internal(err))
				return
			}

			data, err := yaml.Marshal(doc.root)
			if err != nil {
				apierror.Write(w, apierror.Internal(err))
				return
			}

			w.Header().Set("Content-Type", "application/yaml")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(data)
		}).Methods(http.MethodGet)
	}

	if name := cfg.jsonFilename(); name != "-" {
		specURL = resolvePath(basePath, name)
		r.HandleFunc(specURL, func(w http.ResponseWriter, _ *http.Request) {
			doc, err := Load(path)
			if err != nil {
				apierror.Write(w, apierror.Internal(err))
				return
			}

			data, err := schema.MarshalJSON(doc.root)
			if err != nil {
				apierror.Write(w, apierror.Internal(err))
				return
			}

			var out bytes.Buffer
			if err := json.Indent(&out, data, "", "  "); err != nil {
				apierror.Write(w, apierror.Internal(err))
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = out.WriteTo(w)
		}).Methods(http.MethodGet)
	}

	if cfg.DisableDocs || specURL == "" {
		return
	}

	docs := func(w http.ResponseWriter, _ *http.Request) {
		title := cfg.Title
		if title == "" {
			if doc, err := Load(path); err == nil && doc.Info.Title != "" {
				title = doc.Info.Title
			} else {
				title = "API docs"
			}
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(swaggerUIPage(title, specURL)))
	}

	if basePath == "" {
		r.HandleFunc("/", docs).Methods(http.MethodGet)
		return
	}
	r.HandleFunc(basePath, docs).Methods(http.MethodGet)
	r.HandleFunc(basePath+"/", docs).Methods(http.MethodGet)
}

func swaggerUIPage(title, specURL string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>%s</title>
<link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist/swagger-ui.css">
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist/swagger-ui-bundle.js"></script>
<script>
SwaggerUIBundle({url: %q, dom_id: "#swagger-ui"});
</script>
</body>
</html>`, html.EscapeString(title), specURL)
}
