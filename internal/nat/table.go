// Package nat loads the NAT mapping table used to reconcile the address
// space the perimeter firewall sees with the one the internal firewall
// sees. The table is external configuration; a missing table is fatal at
// startup.
package nat

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Mapping is one (internal addr:port, external addr:port) translation with
// its validity interval. A zero ValidUntil means the mapping is still
// active.
type Mapping struct {
	Internal   string    `yaml:"internal"`
	External   string    `yaml:"external"`
	ValidFrom  time.Time `yaml:"valid_from"`
	ValidUntil time.Time `yaml:"valid_until,omitempty"`
}

// activeAt checks if the mapping covers the instant.
func (m *Mapping) activeAt(at time.Time) bool {
	if at.Before(m.ValidFrom) {
		return false
	}
	if !m.ValidUntil.IsZero() && at.After(m.ValidUntil) {
		return false
	}
	return true
}

// Table is the loaded NAT mapping set.
type Table struct {
	mappings []Mapping
}

type tableFile struct {
	Mappings []Mapping `yaml:"mappings"`
}

// Load reads the mapping table from a YAML file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read NAT table: %w", err)
	}
	return Parse(data)
}

// Parse builds a table from YAML bytes.
func Parse(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse NAT table: %w", err)
	}
	for i, m := range f.Mappings {
		if m.Internal == "" || m.External == "" {
			return nil, fmt.Errorf("NAT table entry %d: internal and external are required", i)
		}
		if m.ValidFrom.IsZero() {
			return nil, fmt.Errorf("NAT table entry %d: valid_from is required", i)
		}
	}
	return &Table{mappings: f.Mappings}, nil
}

// NewTable builds a table from in-memory mappings (tests, embedded config).
func NewTable(mappings []Mapping) *Table {
	return &Table{mappings: mappings}
}

// Len returns the number of mappings.
func (t *Table) Len() int { return len(t.mappings) }

// ToExternal translates an internal addr:port to its external translation
// valid at the given instant.
func (t *Table) ToExternal(internal string, at time.Time) (string, bool) {
	for i := range t.mappings {
		m := &t.mappings[i]
		if m.Internal == internal && m.activeAt(at) {
			return m.External, true
		}
	}
	return "", false
}

// ToInternal translates an external addr:port back to the internal side.
func (t *Table) ToInternal(external string, at time.Time) (string, bool) {
	for i := range t.mappings {
		m := &t.mappings[i]
		if m.External == external && m.activeAt(at) {
			return m.Internal, true
		}
	}
	return "", false
}
