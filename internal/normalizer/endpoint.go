package normalizer

import (
	"strings"

	"github.com/kestrelsec/kestrel/internal/model"
	"github.com/kestrelsec/kestrel/internal/timenorm"
)

// EndpointNormalizer handles the EDR family (Trend Apex Central). The host
// key joins endpoint detections to identity events from the same machine.
type EndpointNormalizer struct {
	tn *timenorm.Normalizer
}

// NewEndpointNormalizer creates the endpoint family normalizer.
func NewEndpointNormalizer(tn *timenorm.Normalizer) *EndpointNormalizer {
	return &EndpointNormalizer{tn: tn}
}

func (n *EndpointNormalizer) Supports(source model.SourceType) bool {
	return source == model.SourceTrendApex
}

func (n *EndpointNormalizer) Projection() []string {
	return []string{"@timestamp", "host", "user", "process", "action", "threat_name", "severity"}
}

var endpointActions = map[string]model.Action{
	"process_create": model.ActionProcessCreate,
	"process_start":  model.ActionProcessCreate,
	"detection":      model.ActionAlert,
	"alert":          model.ActionAlert,
	"quarantine":     model.ActionQuarantine,
	"quarantined":    model.ActionQuarantine,
	"blocked":        model.ActionDeny,
	"scan":           model.ActionScan,
}

func (n *EndpointNormalizer) Normalize(rec *model.RawRecord) (*model.CanonicalEvent, error) {
	if err := requireFields(rec, "host", "action"); err != nil {
		return nil, err
	}

	t, err := normalizeTime(n.tn, rec)
	if err != nil {
		return nil, err
	}

	rawAction := strings.ToLower(rec.StringField("action"))
	action, ok := endpointActions[rawAction]
	if !ok {
		return nil, &Error{Reason: ReasonUnrecognizedAction, Field: rawAction, Offset: rec.Offset}
	}

	host := strings.ToLower(rec.StringField("host"))

	return &model.CanonicalEvent{
		EventID:    eventID(rec),
		Source:     rec.Source,
		OccurredAt: t.utc,
		Subject:    host,
		Object:     rec.StringField("process"),
		Action:     action,
		RawFields:  rawSnapshot(rec),
		CorrelationKeys: map[model.KeyKind]string{
			model.KeyHost: host,
		},
	}, nil
}
