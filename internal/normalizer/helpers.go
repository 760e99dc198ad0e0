package normalizer

import (
	"time"

	"github.com/kestrelsec/kestrel/internal/model"
)

// timeValue pairs the normalized UTC instant with the original raw string.
type timeValue struct {
	utc time.Time
	raw string
}

// requireFields returns a missing-required-field error for the first empty
// field, or nil when all are present.
func requireFields(rec *model.RawRecord, names ...string) *Error {
	for _, name := range names {
		if rec.StringField(name) == "" {
			return &Error{Reason: ReasonMissingField, Field: name, Offset: rec.Offset}
		}
	}
	return nil
}

// rawSnapshot copies the projected fields into the read-only raw_fields map.
func rawSnapshot(rec *model.RawRecord) map[string]string {
	out := make(map[string]string, len(rec.Fields))
	for k := range rec.Fields {
		out[k] = rec.StringField(k)
	}
	return out
}

// eventID derives the stable per-record event ID from the document ID.
func eventID(rec *model.RawRecord) string {
	return rec.DocID
}
