package normalizer

import (
	"strings"

	"github.com/kestrelsec/kestrel/internal/model"
	"github.com/kestrelsec/kestrel/internal/timenorm"
)

// AssetAuditNormalizer handles ManageEngine IT asset and operations audit
// logs. These rarely correlate across sources directly but contribute
// persistence-stage evidence (configuration changes on a host).
type AssetAuditNormalizer struct {
	tn *timenorm.Normalizer
}

// NewAssetAuditNormalizer creates the asset-audit family normalizer.
func NewAssetAuditNormalizer(tn *timenorm.Normalizer) *AssetAuditNormalizer {
	return &AssetAuditNormalizer{tn: tn}
}

func (n *AssetAuditNormalizer) Supports(source model.SourceType) bool {
	return source == model.SourceManageEngine
}

func (n *AssetAuditNormalizer) Projection() []string {
	return []string{"@timestamp", "technician", "asset", "operation", "module"}
}

var assetActions = map[string]model.Action{
	"config_change": model.ActionConfigChange,
	"update":        model.ActionConfigChange,
	"modify":        model.ActionConfigChange,
	"install":       model.ActionConfigChange,
	"login":         model.ActionLogin,
	"login_failed":  model.ActionLoginFailed,
	"scan":          model.ActionScan,
}

func (n *AssetAuditNormalizer) Normalize(rec *model.RawRecord) (*model.CanonicalEvent, error) {
	if err := requireFields(rec, "technician", "asset", "operation"); err != nil {
		return nil, err
	}

	t, err := normalizeTime(n.tn, rec)
	if err != nil {
		return nil, err
	}

	rawOp := strings.ToLower(rec.StringField("operation"))
	action, ok := assetActions[rawOp]
	if !ok {
		return nil, &Error{Reason: ReasonUnrecognizedAction, Field: rawOp, Offset: rec.Offset}
	}

	asset := strings.ToLower(rec.StringField("asset"))

	return &model.CanonicalEvent{
		EventID:    eventID(rec),
		Source:     rec.Source,
		OccurredAt: t.utc,
		Subject:    rec.StringField("technician"),
		Object:     asset,
		Action:     action,
		RawFields:  rawSnapshot(rec),
		CorrelationKeys: map[model.KeyKind]string{
			model.KeyHost: asset,
		},
	}, nil
}
