// Package correlation groups canonical events into clusters with a
// sliding-window merge-join over per-source streams. The strategy table is
// fixed; only window widths and the NAT table come from configuration.
package correlation

import (
	"strings"
	"time"

	"github.com/kestrelsec/kestrel/internal/model"
	"github.com/kestrelsec/kestrel/internal/nat"
)

// Strategy names as they appear on emitted clusters.
const (
	StrategyNATPair      = "nat_pair"
	StrategyEmailTrace   = "email_trace"
	StrategyHostSequence = "host_sequence"
	StrategySingleton    = "singleton"
)

// singletonConfidence is assigned to unmatched events forwarded alone.
const singletonConfidence = 0.5

// Strategy is one join rule between two source streams. Match reports
// whether a left/right pair correlates and at what confidence.
type Strategy struct {
	Name   string
	Left   model.SourceType
	Right  model.SourceType
	Window time.Duration
	Match  func(left, right *model.CanonicalEvent) (float64, bool)
}

// Strategies builds the fixed strategy table with the configured windows.
func Strategies(natWindow, emailWindow, hostWindow time.Duration, table *nat.Table) []Strategy {
	return []Strategy{
		{
			Name:   StrategyNATPair,
			Left:   model.SourcePaloAlto,
			Right:  model.SourceFortiGate,
			Window: natWindow,
			Match:  natPairMatch(table),
		},
		{
			Name:   StrategyEmailTrace,
			Left:   model.SourceSpamFilter,
			Right:  model.SourceTrendEmail,
			Window: emailWindow,
			Match:  emailTraceMatch,
		},
		{
			Name:   StrategyHostSequence,
			Left:   model.SourceTrendApex,
			Right:  model.SourceWindowsEvents,
			Window: hostWindow,
			Match:  hostSequenceMatch,
		},
	}
}

// natPairMatch joins perimeter and internal firewall events on the
// nat_pair key. The two firewalls see different address spaces, so a raw
// mismatch is retried with the source side translated through the NAT
// table at the left event's instant.
func natPairMatch(table *nat.Table) func(left, right *model.CanonicalEvent) (float64, bool) {
	return func(left, right *model.CanonicalEvent) (float64, bool) {
		lk := left.Key(model.KeyNATPair)
		rk := right.Key(model.KeyNATPair)
		if lk == "" || rk == "" {
			return 0, false
		}
		if lk == rk {
			return 1.0, true
		}
		if table == nil {
			return 0, false
		}
		if translatePair(lk, table, left.OccurredAt, true) == rk {
			return 1.0, true
		}
		if translatePair(lk, table, left.OccurredAt, false) == rk {
			return 1.0, true
		}
		return 0, false
	}
}

// translatePair rewrites the source half of a "src:port->dst:port" pair
// through the NAT table. Returns "" when no active mapping exists.
func translatePair(pair string, table *nat.Table, at time.Time, toExternal bool) string {
	src, dst, ok := strings.Cut(pair, "->")
	if !ok {
		return ""
	}
	var mapped string
	if toExternal {
		mapped, ok = table.ToExternal(src, at)
	} else {
		mapped, ok = table.ToInternal(src, at)
	}
	if !ok {
		return ""
	}
	return mapped + "->" + dst
}

// emailTraceMatch joins the two email filters on the message trace ID, or
// at reduced confidence on the subject+sender fallback when the trace ID
// is absent on either side.
func emailTraceMatch(left, right *model.CanonicalEvent) (float64, bool) {
	lt := left.Key(model.KeyMessageTrace)
	rt := right.Key(model.KeyMessageTrace)
	if lt != "" && lt == rt {
		return 1.0, true
	}
	if lt != "" && rt != "" {
		// Both sides identify their message and they disagree: these are
		// two distinct messages, never joined on headers alone.
		return 0, false
	}
	lf := left.Key(model.KeySubjectSender)
	rf := right.Key(model.KeySubjectSender)
	if lf != "" && lf == rf {
		return 0.6, true
	}
	return 0, false
}

// hostSequenceMatch joins endpoint detections with identity events on the
// normalized hostname.
func hostSequenceMatch(left, right *model.CanonicalEvent) (float64, bool) {
	lh := left.Key(model.KeyHost)
	rh := right.Key(model.KeyHost)
	if lh != "" && lh == rh {
		return 1.0, true
	}
	return 0, false
}
