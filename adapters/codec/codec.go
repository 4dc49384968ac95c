// Package codec reads and writes taxonomy snapshot files. JSON is the
// default encoding; YAML is selected by a .yaml or .yml extension.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/khoahotran/tagvault/internal/domain/taxonomy"
)

type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

func (f Format) String() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "json"
}

func (f Format) ContentType() string {
	if f == FormatYAML {
		return "application/yaml"
	}
	return "application/json"
}

// FormatFromPath picks the encoding from a file name.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func Marshal(s *taxonomy.Snapshot, f Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, s, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Encode(w io.Writer, s *taxonomy.Snapshot, f Format) error {
	doc, err := toDocument(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if f == FormatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode snapshot as yaml: %w", err)
		}
		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode snapshot as json: %w", err)
	}
	return nil
}

func Unmarshal(data []byte, f Format) (*taxonomy.Snapshot, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", taxonomy.ErrMalformedSnapshot)
	}

	var doc document
	var err error
	if f == FormatYAML {
		err = yaml.Unmarshal(data, &doc)
	} else {
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", taxonomy.ErrMalformedSnapshot, f, err)
	}
	return fromDocument(&doc)
}

func Decode(r io.Reader, f Format) (*taxonomy.Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return Unmarshal(data, f)
}

func ReadFile(path string) (*taxonomy.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}
	return Unmarshal(data, FormatFromPath(path))
}

// WriteFile creates parent directories as needed and replaces path.
func WriteFile(path string, s *taxonomy.Snapshot) error {
	data, err := Marshal(s, FormatFromPath(path))
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot file: %w", err)
	}
	return nil
}
