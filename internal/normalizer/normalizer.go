// Package normalizer maps raw heterogeneous records into canonical events.
// One normalizer exists per source family; all share the same capability
// set (normalize a record, declare the fields it needs) so downstream
// components never branch on source-specific schemas.
package normalizer

import (
	"errors"
	"fmt"

	"github.com/kestrelsec/kestrel/internal/model"
	"github.com/kestrelsec/kestrel/internal/timenorm"
)

// Reason classifies why a record failed normalization.
type Reason string

const (
	ReasonMissingField       Reason = "missing-required-field"
	ReasonUnrecognizedAction Reason = "unrecognized-action"
	ReasonMalformedTimestamp Reason = "malformed-timestamp"
)

// Error is a per-record failure. It is skip-and-log, never fatal: a single
// malformed record never aborts the batch.
type Error struct {
	Reason Reason
	Field  string
	Offset int
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("normalization failed at offset %d: %s (%s)", e.Offset, e.Reason, e.Field)
	}
	return fmt.Sprintf("normalization failed at offset %d: %s", e.Offset, e.Reason)
}

// IsTimestampError reports whether err is a malformed-timestamp failure,
// which routes the record to the unplaceable list instead of the skip log.
func IsTimestampError(err error) bool {
	var ne *Error
	if errors.As(err, &ne) {
		return ne.Reason == ReasonMalformedTimestamp
	}
	return false
}

// Normalizer converts raw records of one source family into canonical
// events. Implementations are pure mappings with no side effects.
type Normalizer interface {
	Supports(source model.SourceType) bool
	// Projection lists the raw fields the normalizer needs. The gateway
	// uses it as the mandatory field projection.
	Projection() []string
	Normalize(rec *model.RawRecord) (*model.CanonicalEvent, error)
}

// Registry holds ordered normalizers and finds a match for a source.
type Registry struct {
	items []Normalizer
}

// NewRegistry constructs a registry with the provided normalizers.
func NewRegistry(items ...Normalizer) *Registry {
	return &Registry{items: items}
}

// DefaultRegistry wires one normalizer per source family.
func DefaultRegistry(tn *timenorm.Normalizer) *Registry {
	return NewRegistry(
		NewFirewallNormalizer(tn),
		NewEmailNormalizer(tn),
		NewEndpointNormalizer(tn),
		NewIdentityNormalizer(tn),
		NewAssetAuditNormalizer(tn),
	)
}

// Find returns the first normalizer that supports the source, or nil.
func (r *Registry) Find(source model.SourceType) Normalizer {
	if r == nil {
		return nil
	}
	for _, n := range r.items {
		if n.Supports(source) {
			return n
		}
	}
	return nil
}

// Projection returns the field projection for a source, or nil when the
// source has no registered normalizer.
func (r *Registry) Projection(source model.SourceType) []string {
	n := r.Find(source)
	if n == nil {
		return nil
	}
	return n.Projection()
}

// normalizeTime parses the record's @timestamp through the time normalizer,
// translating parse failures into the malformed-timestamp reason.
func normalizeTime(tn *timenorm.Normalizer, rec *model.RawRecord) (t timeValue, err error) {
	raw := rec.StringField("@timestamp")
	if raw == "" {
		return t, &Error{Reason: ReasonMissingField, Field: "@timestamp", Offset: rec.Offset}
	}
	utc, terr := tn.ToUTC(rec.Source, raw)
	if terr != nil {
		return t, &Error{Reason: ReasonMalformedTimestamp, Field: "@timestamp", Offset: rec.Offset}
	}
	return timeValue{utc: utc, raw: raw}, nil
}
