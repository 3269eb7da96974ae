package importer

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/knowlode/knowlode/internal/store/graphstore"
)

// File is the top-level structure of a knowlode graph import file.
//
// Example:
//
//	domain: work
//	nodes:
//	  - id: proj-falcon
//	    label: Project
//	    properties:
//	      name: "Project Falcon"
//	  - label: Task
//	    properties:
//	      name: "Ship the beta"
//	    relationships:
//	      - target_id: proj-falcon
//	        relation: BELONGS_TO
type File struct {
	Domain graphstore.Domain `yaml:"domain"`
	Nodes  []NodeImport      `yaml:"nodes"`
}

// LoadFile reads and parses an import file from disk.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("importer: open %q: %w", path, err)
	}
	defer f.Close()

	file, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("importer: parse %q: %w", path, err)
	}
	return file, nil
}

// LoadFromReader parses an import file from r. The reader is consumed
// entirely; the caller is responsible for closing it.
func LoadFromReader(r io.Reader) (*File, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown top-level keys to catch typos
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("importer: decode yaml: %w", err)
	}
	if file.Domain == "" {
		return nil, fmt.Errorf("importer: domain must be set")
	}
	return &file, nil
}
