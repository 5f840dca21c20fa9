package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/potterlabs/mockapi/apierror"
	"github.com/potterlabs/mockapi/fixtures"
	"github.com/potterlabs/mockapi/muxhandlers"
	"github.com/potterlabs/mockapi/registry"
	"github.com/potterlabs/mockapi/stubgen"
)

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) listProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.providers.Providers()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, providers)
}

func (s *Server) getProvider(w http.ResponseWriter, r *http.Request) {
	provider, err := s.providers.Provider(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, provider)
}

func (s *Server) listCapabilities(w http.ResponseWriter, r *http.Request) {
	caps, err := s.providers.Capabilities(mux.Vars(r)["id"], s.cfg.Capabilities)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, caps)
}

func (s *Server) serveEndpoint(examples *fixtures.Examples, e endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		if e.request.Name != "" {
			if err := s.validateBody(r, e.request); err != nil {
				s.fail(w, r, err)
				return
			}
		}

		if e.example != "" {
			raw, ok, err := examples.Lookup(e.example)
			if err != nil {
				s.fail(w, r, apierror.Internal(err))
				return
			}
			if ok {
				writeRaw(w, e.status, raw)
				return
			}
		}

		if e.body != nil {
			writeJSON(w, e.status, e.body(vars))
			return
		}

		value, err := s.stub(e.response)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		if obj, ok := value.(*stubgen.Object); ok {
			for _, fill := range e.fill {
				fill(obj, vars)
			}
		}

		writeJSON(w, e.status, value)
	}
}

// validateBody decodes the request body and checks it against ref. The body
// must be a single JSON object.
func (s *Server) validateBody(r *http.Request, ref registry.Ref) error {
	body, err := decodeObject(r.Body)
	if err != nil {
		return err
	}

	entry, err := s.registry.Lookup(ref)
	if err != nil {
		return apierror.Internal(fmt.Errorf("load request schema %s: %w", ref, err))
	}

	return entry.Validate(body)
}

// stub generates a response value from the schema behind ref.
func (s *Server) stub(ref registry.Ref) (any, error) {
	entry, err := s.registry.Lookup(ref)
	if err != nil {
		return nil, apierror.Internal(fmt.Errorf("load response schema %s: %w", ref, err))
	}

	return s.gen.Generate(entry.Node), nil
}

// decodeObject reads a JSON object from body. Numbers are kept as
// json.Number so integers keep their precision during validation.
func decodeObject(body io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, apierror.Unprocessable("request body is required", nil, nil)
	}

	if !json.Valid(data) {
		return nil, apierror.Unprocessable("request body is not valid JSON", nil, nil)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, apierror.Unprocessable(fmt.Sprintf("request body is not valid JSON: %v", err), nil, nil)
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, apierror.Unprocessable(fmt.Sprintf("request body must be a JSON object, got %s", jsonKind(v)), nil, nil)
	}

	return obj, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// fail writes err as a JSON error response. Internal errors are logged with
// their cause, which never reaches the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apierror.Write(w, err)
	if apiErr.Kind != apierror.KindInternal {
		return
	}

	s.logger.ErrorContext(r.Context(), "request failed",
		"error", err,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", muxhandlers.RequestIDFromContext(r.Context()),
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		apierror.Write(w, apierror.Internal(err))
		return
	}

	writeRaw(w, status, data)
}

func writeRaw(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
