package gateway

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kestrelsec/kestrel/internal/model"
)

// cursorPayload is the decoded form of an opaque page cursor. Sort carries
// the search_after values of the last record on the previous page; Source
// and RangeHash bind the cursor to one (source, time range) stream so a
// stale cursor cannot be replayed against a different query.
type cursorPayload struct {
	Sort      []interface{}    `json:"s"`
	Source    model.SourceType `json:"src"`
	RangeHash string           `json:"r"`
}

// rangeHash fingerprints a (source, time range) stream.
func rangeHash(source model.SourceType, tr TimeRange) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", source, tr.From.UnixNano(), tr.To.UnixNano())))
	return fmt.Sprintf("%x", sum[:8])
}

// encodeCursor builds an opaque cursor from the last hit's sort values.
func encodeCursor(source model.SourceType, tr TimeRange, sort []interface{}) (string, error) {
	payload := cursorPayload{Sort: sort, Source: source, RangeHash: rangeHash(source, tr)}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// decodeCursor validates and unpacks an opaque cursor for the given stream.
func decodeCursor(cursor string, source model.SourceType, tr TimeRange) ([]interface{}, error) {
	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	var payload cursorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	if payload.Source != source || payload.RangeHash != rangeHash(source, tr) {
		return nil, fmt.Errorf("cursor does not belong to source %s and the requested range", source)
	}
	return payload.Sort, nil
}

// TimeRange is the UTC interval a fetch covers, inclusive on both ends.
type TimeRange struct {
	From time.Time
	To   time.Time
}
