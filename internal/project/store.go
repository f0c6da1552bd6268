package project

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
	sigsyaml "sigs.k8s.io/yaml"
)

// document is the on-disk layout: {"libraries": [...]}.
type document struct {
	Libraries Projects `json:"libraries" yaml:"libraries"`
}

// Store persists projects in a single JSON or YAML file. The format is
// chosen by file extension when writing; reading accepts either.
type Store struct {
	path string
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads and validates the project list. A missing file yields an empty
// list. Relative paths inside the file are resolved against its directory.
func (s *Store) Load() (Projects, error) {
	projects, err := s.LoadRaw()
	if err != nil {
		return nil, err
	}

	base, err := filepath.Abs(filepath.Dir(s.path))
	if err != nil {
		return nil, fmt.Errorf("resolving projects file directory: %w", err)
	}

	for i := range projects {
		projects[i] = projects[i].Resolve(base)
	}

	return projects, nil
}

// LoadRaw is Load without path resolution. Edits that end in Save start
// from it so relative paths stay relative in the file.
func (s *Store) LoadRaw() (Projects, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Projects{}, nil
		}

		return nil, fmt.Errorf("reading projects file %s: %w", s.path, err)
	}

	projects, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("projects file %s: %w", s.path, err)
	}

	return projects, nil
}

// Save validates and writes the project list, replacing the file atomically.
func (s *Store) Save(projects Projects) error {
	if err := projects.Validate(); err != nil {
		return err
	}

	if projects == nil {
		projects = Projects{}
	}

	data, err := Encode(projects, formatFor(s.path))
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".projects-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("writing %s: %w", tmpName, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("closing %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("replacing projects file %s: %w", s.path, err)
	}

	return nil
}

// Parse decodes a JSON or YAML project document and validates it.
func Parse(data []byte) (Projects, error) {
	var doc document

	if len(bytes.TrimSpace(data)) == 0 {
		return Projects{}, nil
	}

	if err := sigsyaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing projects: %w", err)
	}

	if doc.Libraries == nil {
		doc.Libraries = Projects{}
	}

	if err := doc.Libraries.Validate(); err != nil {
		return nil, err
	}

	return doc.Libraries, nil
}

// Supported store formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Encode renders the project document in the given format.
func Encode(projects Projects, format string) ([]byte, error) {
	doc := document{Libraries: projects}

	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "    ")
		if err != nil {
			return nil, fmt.Errorf("encoding projects as JSON: %w", err)
		}

		return append(data, '\n'), nil

	case FormatYAML:
		var buf bytes.Buffer

		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)

		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encoding projects as YAML: %w", err)
		}

		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encoding projects as YAML: %w", err)
		}

		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("unsupported projects format %q: use json or yaml", format)
	}
}

func formatFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}
