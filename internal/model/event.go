// Package model defines the canonical event model shared by every pipeline
// stage. All seven log source families normalize into CanonicalEvent; the
// correlation engine, kill-chain reconstructor and risk scorer never see a
// raw record.
package model

import "time"

// SourceType identifies one of the seven supported log source families.
type SourceType string

const (
	SourcePaloAlto      SourceType = "palo_alto"      // perimeter firewall
	SourceFortiGate     SourceType = "fortigate"      // internal segmentation firewall
	SourceSpamFilter    SourceType = "spam_filter"    // first-pass email filter
	SourceTrendEmail    SourceType = "trend_email"    // second-pass email filter
	SourceTrendApex     SourceType = "trend_apex"     // endpoint EDR
	SourceWindowsEvents SourceType = "windows_events" // identity / system logs
	SourceManageEngine  SourceType = "manage_engine"  // IT asset audit
)

// AllSources returns the source families in a fixed order.
func AllSources() []SourceType {
	return []SourceType{
		SourcePaloAlto,
		SourceFortiGate,
		SourceSpamFilter,
		SourceTrendEmail,
		SourceTrendApex,
		SourceWindowsEvents,
		SourceManageEngine,
	}
}

// IsValid checks if the source type is one of the seven families.
func (s SourceType) IsValid() bool {
	switch s {
	case SourcePaloAlto, SourceFortiGate, SourceSpamFilter, SourceTrendEmail,
		SourceTrendApex, SourceWindowsEvents, SourceManageEngine:
		return true
	default:
		return false
	}
}

// IndexPattern returns the log store index pattern for the source family.
func (s SourceType) IndexPattern() string {
	switch s {
	case SourcePaloAlto:
		return "paloalto-*"
	case SourceFortiGate:
		return "fortigate-*"
	case SourceSpamFilter:
		return "spam-filter-*"
	case SourceTrendEmail:
		return "trend-email-*"
	case SourceTrendApex:
		return "trend-apex-*"
	case SourceWindowsEvents:
		return "winlogbeat-*"
	case SourceManageEngine:
		return "manageengine-*"
	default:
		return ""
	}
}

// Action is the canonical verb an event represents.
type Action string

const (
	ActionAllow         Action = "allow"
	ActionDeny          Action = "deny"
	ActionAlert         Action = "alert"
	ActionQuarantine    Action = "quarantine"
	ActionLogin         Action = "login"
	ActionLoginFailed   Action = "login_failed"
	ActionLockout       Action = "lockout"
	ActionProcessCreate Action = "process_create"
	ActionConfigChange  Action = "config_change"
	ActionScan          Action = "scan"
	ActionTransfer      Action = "transfer"
)

// IsValid checks if the action is a recognized canonical verb.
func (a Action) IsValid() bool {
	switch a {
	case ActionAllow, ActionDeny, ActionAlert, ActionQuarantine, ActionLogin,
		ActionLoginFailed, ActionLockout, ActionProcessCreate,
		ActionConfigChange, ActionScan, ActionTransfer:
		return true
	default:
		return false
	}
}

// KeyKind names a correlation key slot on a canonical event.
type KeyKind string

const (
	KeyNATPair       KeyKind = "nat_pair"       // "src:port->dst:port"
	KeyMessageTrace  KeyKind = "message_trace"  // "<id@domain>"
	KeySubjectSender KeyKind = "subject_sender" // "subject|sender", email fallback
	KeyHost          KeyKind = "host"           // endpoint / identity hostname
)

// CanonicalEvent is the normalized representation of one raw log record.
//
// OccurredAt is always UTC. Source and Action are always set. RawFields is
// the read-only projection of the original record, kept for drill-down.
// CorrelationKeys may be empty but is never nil.
type CanonicalEvent struct {
	EventID         string             `json:"event_id"`
	Source          SourceType         `json:"source_type"`
	OccurredAt      time.Time          `json:"occurred_at"`
	Subject         string             `json:"subject_identity"`
	Object          string             `json:"object_identity"`
	Action          Action             `json:"action"`
	RawFields       map[string]string  `json:"raw_fields,omitempty"`
	CorrelationKeys map[KeyKind]string `json:"correlation_keys"`
}

// Key returns the correlation key of the given kind, or "" if absent.
func (e *CanonicalEvent) Key(kind KeyKind) string {
	if e.CorrelationKeys == nil {
		return ""
	}
	return e.CorrelationKeys[kind]
}
