package normalizer

import (
	"fmt"
	"strings"

	"github.com/kestrelsec/kestrel/internal/model"
	"github.com/kestrelsec/kestrel/internal/timenorm"
)

// FirewallNormalizer handles the network-firewall family: Palo Alto
// (perimeter) and FortiGate (internal segmentation). Both emit
// source/destination tuples; the NAT pair key is built from the raw
// addresses — NAT resolution happens in the correlation engine, not here.
type FirewallNormalizer struct {
	tn *timenorm.Normalizer
}

// NewFirewallNormalizer creates the network-firewall family normalizer.
func NewFirewallNormalizer(tn *timenorm.Normalizer) *FirewallNormalizer {
	return &FirewallNormalizer{tn: tn}
}

func (n *FirewallNormalizer) Supports(source model.SourceType) bool {
	return source == model.SourcePaloAlto || source == model.SourceFortiGate
}

func (n *FirewallNormalizer) Projection() []string {
	return []string{"@timestamp", "src_ip", "src_port", "dst_ip", "dst_port", "action", "rule", "protocol"}
}

// firewallActions maps appliance verbs onto the canonical action enum.
var firewallActions = map[string]model.Action{
	"allow":  model.ActionAllow,
	"permit": model.ActionAllow,
	"accept": model.ActionAllow,
	"deny":   model.ActionDeny,
	"drop":   model.ActionDeny,
	"block":  model.ActionDeny,
	"reset":  model.ActionDeny,
	"alert":  model.ActionAlert,
	"scan":   model.ActionScan,
}

func (n *FirewallNormalizer) Normalize(rec *model.RawRecord) (*model.CanonicalEvent, error) {
	if err := requireFields(rec, "src_ip", "dst_ip", "action"); err != nil {
		return nil, err
	}

	t, err := normalizeTime(n.tn, rec)
	if err != nil {
		return nil, err
	}

	rawAction := strings.ToLower(rec.StringField("action"))
	action, ok := firewallActions[rawAction]
	if !ok {
		return nil, &Error{Reason: ReasonUnrecognizedAction, Field: rawAction, Offset: rec.Offset}
	}

	src := hostPort(rec.StringField("src_ip"), rec.StringField("src_port"))
	dst := hostPort(rec.StringField("dst_ip"), rec.StringField("dst_port"))

	return &model.CanonicalEvent{
		EventID:    eventID(rec),
		Source:     rec.Source,
		OccurredAt: t.utc,
		Subject:    rec.StringField("src_ip"),
		Object:     rec.StringField("dst_ip"),
		Action:     action,
		RawFields:  rawSnapshot(rec),
		CorrelationKeys: map[model.KeyKind]string{
			model.KeyNATPair: fmt.Sprintf("%s->%s", src, dst),
		},
	}, nil
}

// hostPort renders "addr:port", leaving a bare address when the port is
// absent (ICMP and the like).
func hostPort(addr, port string) string {
	if port == "" {
		return addr
	}
	return addr + ":" + port
}
