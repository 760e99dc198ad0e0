package normalizer

import (
	"strings"

	"github.com/kestrelsec/kestrel/internal/model"
	"github.com/kestrelsec/kestrel/internal/timenorm"
)

// EmailNormalizer handles both email filter passes: the first-pass SPAM
// filter and the second-pass Trend Micro email security gateway. The
// message_trace key carries the Message-ID when present; subject_sender is
// the lower-confidence fallback used when the ID is absent on either side.
type EmailNormalizer struct {
	tn *timenorm.Normalizer
}

// NewEmailNormalizer creates the email-filter family normalizer.
func NewEmailNormalizer(tn *timenorm.Normalizer) *EmailNormalizer {
	return &EmailNormalizer{tn: tn}
}

func (n *EmailNormalizer) Supports(source model.SourceType) bool {
	return source == model.SourceSpamFilter || source == model.SourceTrendEmail
}

func (n *EmailNormalizer) Projection() []string {
	return []string{"@timestamp", "message_id", "subject", "sender", "recipient", "action", "verdict"}
}

var emailActions = map[string]model.Action{
	"delivered":   model.ActionAllow,
	"pass":        model.ActionAllow,
	"allow":       model.ActionAllow,
	"blocked":     model.ActionDeny,
	"block":       model.ActionDeny,
	"reject":      model.ActionDeny,
	"quarantine":  model.ActionQuarantine,
	"quarantined": model.ActionQuarantine,
	"alert":       model.ActionAlert,
}

func (n *EmailNormalizer) Normalize(rec *model.RawRecord) (*model.CanonicalEvent, error) {
	if err := requireFields(rec, "sender", "recipient", "action"); err != nil {
		return nil, err
	}

	t, err := normalizeTime(n.tn, rec)
	if err != nil {
		return nil, err
	}

	rawAction := strings.ToLower(rec.StringField("action"))
	action, ok := emailActions[rawAction]
	if !ok {
		return nil, &Error{Reason: ReasonUnrecognizedAction, Field: rawAction, Offset: rec.Offset}
	}

	keys := map[model.KeyKind]string{}
	if id := rec.StringField("message_id"); id != "" {
		keys[model.KeyMessageTrace] = id
	}
	subject := rec.StringField("subject")
	sender := rec.StringField("sender")
	if subject != "" && sender != "" {
		keys[model.KeySubjectSender] = subject + "|" + strings.ToLower(sender)
	}

	return &model.CanonicalEvent{
		EventID:         eventID(rec),
		Source:          rec.Source,
		OccurredAt:      t.utc,
		Subject:         strings.ToLower(sender),
		Object:          strings.ToLower(rec.StringField("recipient")),
		Action:          action,
		RawFields:       rawSnapshot(rec),
		CorrelationKeys: keys,
	}, nil
}
