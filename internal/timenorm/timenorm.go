// Package timenorm converts source-local timestamps to the single internal
// UTC representation and back to a display timezone on output. Every source
// family has one configured input timezone; nothing is inferred per record.
package timenorm

import (
	"fmt"
	"sync"
	"time"

	"github.com/kestrelsec/kestrel/internal/model"
)

// Error reports a raw timestamp that could not be parsed. Such events are
// excluded from correlation but retained on the unplaceable list for audit.
type Error struct {
	Source model.SourceType
	Raw    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("time normalization failed for source %s: unparseable timestamp %q", e.Source, e.Raw)
}

// layouts covers the wall-clock formats the seven appliances emit.
// Zone-aware layouts come first so explicit offsets win over the
// configured input timezone.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"Jan _2 2006 15:04:05",
}

// Unplaceable records one event that could not be placed on the timeline.
type Unplaceable struct {
	Source model.SourceType `json:"source_type"`
	Offset int              `json:"offset"`
	Raw    string           `json:"raw_timestamp"`
}

// Normalizer holds the per-source input locations and the display location.
type Normalizer struct {
	inputs  map[model.SourceType]*time.Location
	display *time.Location

	mu          sync.Mutex
	unplaceable []Unplaceable
}

// New builds a Normalizer from timezone names. Unknown zone names are a
// startup failure, not a per-record one.
func New(sourceZones map[string]string, displayZone string) (*Normalizer, error) {
	display, err := time.LoadLocation(displayZone)
	if err != nil {
		return nil, fmt.Errorf("load display timezone %q: %w", displayZone, err)
	}

	inputs := make(map[model.SourceType]*time.Location, len(sourceZones))
	for src, zone := range sourceZones {
		st := model.SourceType(src)
		if !st.IsValid() {
			return nil, fmt.Errorf("timezone mapping for unknown source %q", src)
		}
		loc, err := time.LoadLocation(zone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q for source %s: %w", zone, src, err)
		}
		inputs[st] = loc
	}

	return &Normalizer{inputs: inputs, display: display}, nil
}

// ToUTC parses a raw timestamp in the source's configured input timezone
// and returns the UTC instant.
func (n *Normalizer) ToUTC(source model.SourceType, raw string) (time.Time, error) {
	loc, ok := n.inputs[source]
	if !ok {
		return time.Time{}, fmt.Errorf("no input timezone configured for source %s", source)
	}
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &Error{Source: source, Raw: raw}
}

// InSourceZone renders a UTC instant back in the source's input timezone.
// Used by the audit trail to reproduce the original wall-clock value.
func (n *Normalizer) InSourceZone(source model.SourceType, t time.Time) time.Time {
	loc, ok := n.inputs[source]
	if !ok {
		return t.UTC()
	}
	return t.In(loc)
}

// Display renders a UTC instant in the configured display timezone.
func (n *Normalizer) Display(t time.Time) time.Time {
	return t.In(n.display)
}

// RecordUnplaceable retains an unparseable event for audit.
func (n *Normalizer) RecordUnplaceable(source model.SourceType, offset int, raw string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unplaceable = append(n.unplaceable, Unplaceable{Source: source, Offset: offset, Raw: raw})
}

// UnplaceableList returns a copy of the unplaceable side list.
func (n *Normalizer) UnplaceableList() []Unplaceable {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Unplaceable, len(n.unplaceable))
	copy(out, n.unplaceable)
	return out
}
