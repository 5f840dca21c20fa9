// Package fixtures reads the canned data the mock server hands out: the
// provider catalogue, provider capabilities and example response bodies.
package fixtures

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
	"github.com/potterlabs/mockapi/apierror"
)

const (
	ProvidersFile    = "providers.json"
	CapabilitiesFile = "capabilities.json"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// ErrInvalidFixture is returned when a fixture file holds a malformed entry.
var ErrInvalidFixture = errors.New("fixtures: invalid entry")

// Provider is an upstream generation service.
type Provider struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Description *string `json:"description"`
	URL         *string `json:"url"`
	Status      string  `json:"status"`
}

// normalize fills defaults and checks field constraints.
func (p *Provider) normalize() error {
	if p.ID == "" || p.Name == "" || p.Category == "" {
		return fmt.Errorf("%w: provider %q: id, name and category are required", ErrInvalidFixture, p.ID)
	}

	if p.Status == "" {
		p.Status = StatusActive
	}
	if p.Status != StatusActive && p.Status != StatusInactive {
		return fmt.Errorf("%w: provider %q: status %q is not active or inactive", ErrInvalidFixture, p.ID, p.Status)
	}

	if p.URL != nil {
		u, err := url.Parse(*p.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: provider %q: url %q is not absolute", ErrInvalidFixture, p.ID, *p.URL)
		}
	}

	return nil
}

// Capability is something a provider can do.
type Capability struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	InputSchema  *string `json:"input_schema"`
	OutputSchema *string `json:"output_schema"`
}

func (c *Capability) normalize() error {
	if c.ID == "" || c.Name == "" || c.Type == "" {
		return fmt.Errorf("%w: capability %q: id, name and type are required", ErrInvalidFixture, c.ID)
	}
	return nil
}

// Store reads providers.json and capabilities.json from a directory. Files
// are read on every call so edits show up without a restart.
type Store struct {
	dir string
}

// NewStore returns a Store reading from dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Providers returns every provider in file order.
func (s *Store) Providers() ([]Provider, error) {
	var providers []Provider
	if err := readJSON(filepath.Join(s.dir, ProvidersFile), &providers); err != nil {
		return nil, err
	}

	for i := range providers {
		if err := providers[i].normalize(); err != nil {
			return nil, err
		}
	}

	return providers, nil
}

// Provider returns the provider with the given id, or a not_found error.
func (s *Store) Provider(id string) (*Provider, error) {
	providers, err := s.Providers()
	if err != nil {
		return nil, err
	}

	for i := range providers {
		if providers[i].ID == id {
			return &providers[i], nil
		}
	}

	return nil, apierror.NotFound("Provider", id)
}

// Capabilities returns the capabilities of a provider. When subsets names a
// non-empty list for the provider only those capabilities are returned,
// otherwise all of them. An unknown provider yields a not_found error.
func (s *Store) Capabilities(providerID string, subsets map[string][]string) ([]Capability, error) {
	if _, err := s.Provider(providerID); err != nil {
		return nil, err
	}

	var caps []Capability
	if err := readJSON(filepath.Join(s.dir, CapabilitiesFile), &caps); err != nil {
		return nil, err
	}

	for i := range caps {
		if err := caps[i].normalize(); err != nil {
			return nil, err
		}
	}

	names := subsets[providerID]
	if len(names) == 0 {
		return caps, nil
	}

	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}

	filtered := make([]Capability, 0, len(names))
	for _, c := range caps {
		if allowed[c.ID] {
			filtered = append(filtered, c)
		}
	}

	return filtered, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("fixtures: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("fixtures: %s: %w", path, err)
	}

	return nil
}
