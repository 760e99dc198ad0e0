package normalizer

import (
	"strings"

	"github.com/kestrelsec/kestrel/internal/model"
	"github.com/kestrelsec/kestrel/internal/timenorm"
)

// IdentityNormalizer handles Windows event logs (AD authentication, GPO,
// system logons). Actions are derived from the well-known event ID rather
// than free text.
type IdentityNormalizer struct {
	tn *timenorm.Normalizer
}

// NewIdentityNormalizer creates the identity/system family normalizer.
func NewIdentityNormalizer(tn *timenorm.Normalizer) *IdentityNormalizer {
	return &IdentityNormalizer{tn: tn}
}

func (n *IdentityNormalizer) Supports(source model.SourceType) bool {
	return source == model.SourceWindowsEvents
}

func (n *IdentityNormalizer) Projection() []string {
	return []string{"@timestamp", "event_id", "host", "account", "logon_type", "process_name"}
}

// windowsActions maps security event IDs onto the canonical enum.
// 4624 logon, 4625 failed logon, 4740 lockout, 4688 process creation.
var windowsActions = map[string]model.Action{
	"4624": model.ActionLogin,
	"4625": model.ActionLoginFailed,
	"4740": model.ActionLockout,
	"4688": model.ActionProcessCreate,
}

func (n *IdentityNormalizer) Normalize(rec *model.RawRecord) (*model.CanonicalEvent, error) {
	if err := requireFields(rec, "event_id", "host"); err != nil {
		return nil, err
	}

	t, err := normalizeTime(n.tn, rec)
	if err != nil {
		return nil, err
	}

	code := rec.StringField("event_id")
	action, ok := windowsActions[code]
	if !ok {
		return nil, &Error{Reason: ReasonUnrecognizedAction, Field: code, Offset: rec.Offset}
	}

	host := strings.ToLower(rec.StringField("host"))
	object := rec.StringField("process_name")
	if object == "" {
		object = rec.StringField("account")
	}

	return &model.CanonicalEvent{
		EventID:    eventID(rec),
		Source:     rec.Source,
		OccurredAt: t.utc,
		Subject:    host,
		Object:     object,
		Action:     action,
		RawFields:  rawSnapshot(rec),
		CorrelationKeys: map[model.KeyKind]string{
			model.KeyHost: host,
		},
	}, nil
}
