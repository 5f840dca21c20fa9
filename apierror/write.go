package apierror

import (
	"net/http"

	json "github.com/goccy/go-json"
)

type errorBody struct {
	Error   Kind   `json:"error"`
	Message string `json:"message"`
}

type validationBody struct {
	Error      Kind     `json:"error"`
	Message    string   `json:"message"`
	Path       []any    `json:"path"`
	SchemaPath []string `json:"schema_path"`
}

// Body returns the JSON-serializable response body for the error.
//
// Validation failures are nested under "detail" so clients written against
// the upstream API parse them unchanged:
//
//	{"detail": {"error": "unprocessable_entity", "message": "...", "path": [...], "schema_path": [...]}}
//
// Every other kind is flat:
//
//	{"error": "not_found", "message": "Provider 'acme' not found"}
func (e *Error) Body() any {
	if e.Kind == KindUnprocessableEntity {
		path := e.Path
		if path == nil {
			path = []any{}
		}
		schemaPath := e.SchemaPath
		if schemaPath == nil {
			schemaPath = []string{}
		}

		return map[string]any{
			"detail": validationBody{
				Error:      e.Kind,
				Message:    e.Message,
				Path:       path,
				SchemaPath: schemaPath,
			},
		}
	}

	return errorBody{Error: e.Kind, Message: e.Message}
}

// Write renders err as a JSON error response and returns the classified
// error so callers can log the cause.
func Write(w http.ResponseWriter, err error) *Error {
	apiErr := From(err)
	if apiErr == nil {
		apiErr = Internal(nil)
	}

	data, mErr := json.Marshal(apiErr.Body())
	if mErr != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return apiErr
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(apiErr.StatusCode())
	w.Write(append(data, '\n'))

	return apiErr
}

// Handler returns an http.Handler that always writes an error of the given
// kind. It backs the router's NotFoundHandler and MethodNotAllowedHandler.
func Handler(kind Kind) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Write(w, New(kind, "%s %s: %s", r.Method, r.URL.Path, http.StatusText(kind.StatusCode())))
	})
}
