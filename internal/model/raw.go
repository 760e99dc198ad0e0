package model

import "fmt"

// RawRecord is one document fetched from the log store, before
// normalization. Fields carries only the projected columns — the gateway
// never fetches full documents.
type RawRecord struct {
	Source SourceType             `json:"source_type"`
	Index  string                 `json:"index"`
	DocID  string                 `json:"doc_id"`
	Offset int                    `json:"offset"` // position within the run's stream, for skip logging
	Fields map[string]interface{} `json:"fields"`
}

// StringField returns the named field as a string, or "" if absent.
func (r *RawRecord) StringField(name string) string {
	v, ok := r.Fields[name]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}
