package correlation

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsec/kestrel/common/logging"
	"github.com/kestrelsec/kestrel/internal/config"
	"github.com/kestrelsec/kestrel/internal/model"
	"github.com/kestrelsec/kestrel/internal/nat"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func testConfig() config.CorrelationConfig {
	return config.CorrelationConfig{
		NATWindow:   120 * time.Second,
		EmailWindow: 24 * time.Hour,
		HostWindow:  10 * time.Minute,
	}
}

func testTable() *nat.Table {
	return nat.NewTable([]nat.Mapping{
		{
			Internal:  "10.0.0.5:51000",
			External:  "203.0.113.7:40000",
			ValidFrom: t0.Add(-time.Hour),
		},
	})
}

func testEngine(cfg config.CorrelationConfig) *Engine {
	return NewEngine(cfg, testTable(), logging.Default())
}

func event(source model.SourceType, id string, at time.Time, action model.Action, keys map[model.KeyKind]string) *model.CanonicalEvent {
	if keys == nil {
		keys = map[model.KeyKind]string{}
	}
	return &model.CanonicalEvent{
		EventID:         id,
		Source:          source,
		OccurredAt:      at,
		Action:          action,
		CorrelationKeys: keys,
	}
}

func firewallEvent(source model.SourceType, id string, at time.Time, pair string) *model.CanonicalEvent {
	return event(source, id, at, model.ActionAllow, map[model.KeyKind]string{model.KeyNATPair: pair})
}

func clustersByStrategy(clusters []*model.CorrelatedCluster, strategy string) []*model.CorrelatedCluster {
	var out []*model.CorrelatedCluster
	for _, c := range clusters {
		if c.Strategy == strategy {
			out = append(out, c)
		}
	}
	return out
}

func TestNATPairCorrelation(t *testing.T) {
	e := testEngine(testConfig())

	t.Run("nat-translated pair correlates across the firewalls", func(t *testing.T) {
		events := []*model.CanonicalEvent{
			firewallEvent(model.SourcePaloAlto, "pa-1", t0, "10.0.0.5:51000->8.8.8.8:443"),
			firewallEvent(model.SourceFortiGate, "fg-1", t0.Add(30*time.Second), "203.0.113.7:40000->8.8.8.8:443"),
		}
		clusters := e.Correlate(events, nil)
		require.Len(t, clusters, 1)

		c := clusters[0]
		assert.Equal(t, StrategyNATPair, c.Strategy)
		assert.Equal(t, 1.0, c.Confidence)
		assert.Equal(t, []string{"pa-1", "fg-1"}, c.EventIDs())
		assert.False(t, c.Incomplete)
	})

	t.Run("identical raw pairs correlate without the table", func(t *testing.T) {
		events := []*model.CanonicalEvent{
			firewallEvent(model.SourcePaloAlto, "pa-1", t0, "10.0.0.5:51000->8.8.8.8:443"),
			firewallEvent(model.SourceFortiGate, "fg-1", t0.Add(time.Minute), "10.0.0.5:51000->8.8.8.8:443"),
		}
		clusters := e.Correlate(events, nil)
		require.Len(t, clusters, 1)
		assert.Equal(t, StrategyNATPair, clusters[0].Strategy)
	})

	t.Run("unmapped mismatch stays singleton", func(t *testing.T) {
		events := []*model.CanonicalEvent{
			firewallEvent(model.SourcePaloAlto, "pa-1", t0, "10.0.0.99:1->8.8.8.8:443"),
			firewallEvent(model.SourceFortiGate, "fg-1", t0.Add(time.Minute), "203.0.113.50:2->8.8.8.8:443"),
		}
		clusters := e.Correlate(events, nil)
		require.Len(t, clusters, 2)
		for _, c := range clusters {
			assert.Equal(t, StrategySingleton, c.Strategy)
			assert.Equal(t, singletonConfidence, c.Confidence)
		}
	})
}

func TestWindowBoundary(t *testing.T) {
	e := testEngine(testConfig())
	pair := "10.0.0.5:51000->8.8.8.8:443"

	t.Run("exactly on the boundary is inside", func(t *testing.T) {
		events := []*model.CanonicalEvent{
			firewallEvent(model.SourcePaloAlto, "pa-1", t0, pair),
			firewallEvent(model.SourceFortiGate, "fg-1", t0.Add(120*time.Second), pair),
		}
		clusters := e.Correlate(events, nil)
		require.Len(t, clusters, 1)
		assert.Equal(t, StrategyNATPair, clusters[0].Strategy)
	})

	t.Run("one second past the boundary is outside", func(t *testing.T) {
		events := []*model.CanonicalEvent{
			firewallEvent(model.SourcePaloAlto, "pa-1", t0, pair),
			firewallEvent(model.SourceFortiGate, "fg-1", t0.Add(121*time.Second), pair),
		}
		clusters := e.Correlate(events, nil)
		require.Len(t, clusters, 2)
		for _, c := range clusters {
			assert.Equal(t, StrategySingleton, c.Strategy)
		}
	})

	t.Run("right event before the left is still inside the window", func(t *testing.T) {
		events := []*model.CanonicalEvent{
			firewallEvent(model.SourcePaloAlto, "pa-1", t0, pair),
			firewallEvent(model.SourceFortiGate, "fg-1", t0.Add(-90*time.Second), pair),
		}
		clusters := e.Correlate(events, nil)
		require.Len(t, clusters, 1)
		assert.Equal(t, []string{"fg-1", "pa-1"}, clusters[0].EventIDs())
	})
}

func TestEmailTraceCorrelation(t *testing.T) {
	e := testEngine(testConfig())

	t.Run("exact trace id gives full confidence", func(t *testing.T) {
		events := []*model.CanonicalEvent{
			event(model.SourceSpamFilter, "sp-1", t0, model.ActionAllow, map[model.KeyKind]string{
				model.KeyMessageTrace: "<m1@example.com>",
			}),
			event(model.SourceTrendEmail, "te-1", t0.Add(5*time.Hour), model.ActionDeny, map[model.KeyKind]string{
				model.KeyMessageTrace: "<m1@example.com>",
			}),
		}
		clusters := e.Correlate(events, nil)
		require.Len(t, clusters, 1)
		assert.Equal(t, StrategyEmailTrace, clusters[0].Strategy)
		assert.Equal(t, 1.0, clusters[0].Confidence)
	})

	t.Run("subject and sender fallback gives reduced confidence", func(t *testing.T) {
		events := []*model.CanonicalEvent{
			event(model.SourceSpamFilter, "sp-1", t0, model.ActionAllow, map[model.KeyKind]string{
				model.KeySubjectSender: "Invoice|alice@example.com",
			}),
			event(model.SourceTrendEmail, "te-1", t0.Add(time.Hour), model.ActionDeny, map[model.KeyKind]string{
				model.KeySubjectSender: "Invoice|alice@example.com",
			}),
		}
		clusters := e.Correlate(events, nil)
		require.Len(t, clusters, 1)
		assert.Equal(t, StrategyEmailTrace, clusters[0].Strategy)
		assert.Equal(t, 0.6, clusters[0].Confidence)
	})

	t.Run("different messages stay apart", func(t *testing.T) {
		events := []*model.CanonicalEvent{
			event(model.SourceSpamFilter, "sp-1", t0, model.ActionAllow, map[model.KeyKind]string{
				model.KeyMessageTrace: "<m1@example.com>",
			}),
			event(model.SourceTrendEmail, "te-1", t0.Add(time.Hour), model.ActionDeny, map[model.KeyKind]string{
				model.KeyMessageTrace: "<m2@example.com>",
			}),
		}
		clusters := e.Correlate(events, nil)
		assert.Len(t, clusters, 2)
	})

	t.Run("distinct trace ids are never joined on shared headers", func(t *testing.T) {
		// Bulk campaigns reuse subject and sender across many messages;
		// once both filters name their message, a mismatch is final.
		events := []*model.CanonicalEvent{
			event(model.SourceSpamFilter, "sp-1", t0, model.ActionAllow, map[model.KeyKind]string{
				model.KeyMessageTrace:  "<m1@example.com>",
				model.KeySubjectSender: "Invoice|alice@example.com",
			}),
			event(model.SourceTrendEmail, "te-1", t0.Add(time.Hour), model.ActionDeny, map[model.KeyKind]string{
				model.KeyMessageTrace:  "<m2@example.com>",
				model.KeySubjectSender: "Invoice|alice@example.com",
			}),
		}
		clusters := e.Correlate(events, nil)
		require.Len(t, clusters, 2)
		for _, c := range clusters {
			assert.Equal(t, StrategySingleton, c.Strategy)
		}
	})
}

func TestHostSequenceCorrelation(t *testing.T) {
	e := testEngine(testConfig())

	events := []*model.CanonicalEvent{
		event(model.SourceTrendApex, "edr-1", t0, model.ActionAlert, map[model.KeyKind]string{
			model.KeyHost: "ws-0042",
		}),
		event(model.SourceWindowsEvents, "win-1", t0.Add(3*time.Minute), model.ActionLogin, map[model.KeyKind]string{
			model.KeyHost: "ws-0042",
		}),
		event(model.SourceWindowsEvents, "win-2", t0.Add(8*time.Minute), model.ActionProcessCreate, map[model.KeyKind]string{
			model.KeyHost: "ws-0042",
		}),
	}
	clusters := e.Correlate(events, nil)
	require.Len(t, clusters, 1)

	c := clusters[0]
	assert.Equal(t, StrategyHostSequence, c.Strategy)
	assert.Equal(t, 1.0, c.Confidence)
	assert.Equal(t, []string{"edr-1", "win-1", "win-2"}, c.EventIDs())
}

func TestDeterminism(t *testing.T) {
	e := testEngine(testConfig())

	build := func() []*model.CanonicalEvent {
		var events []*model.CanonicalEvent
		for i := 0; i < 10; i++ {
			at := t0.Add(time.Duration(i) * time.Minute)
			events = append(events,
				event(model.SourceTrendApex, fmt.Sprintf("edr-%d", i), at, model.ActionAlert,
					map[model.KeyKind]string{model.KeyHost: fmt.Sprintf("ws-%d", i%3)}),
				event(model.SourceWindowsEvents, fmt.Sprintf("win-%d", i), at.Add(time.Minute), model.ActionLogin,
					map[model.KeyKind]string{model.KeyHost: fmt.Sprintf("ws-%d", i%3)}),
			)
		}
		return events
	}

	forward := build()
	reversed := build()
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}

	a := e.Correlate(forward, nil)
	b := e.Correlate(reversed, nil)

	require.Equal(t, len(a), len(b))
	ids := func(clusters []*model.CorrelatedCluster) map[string][]string {
		out := make(map[string][]string)
		for _, c := range clusters {
			out[c.ClusterID] = c.EventIDs()
		}
		return out
	}
	assert.Equal(t, ids(a), ids(b))
}

func TestEventAppearsInExactlyOneCluster(t *testing.T) {
	e := testEngine(testConfig())

	// Two perimeter events compete for the same internal match; the
	// earlier one wins and the later becomes a singleton.
	pair := "10.0.0.5:51000->8.8.8.8:443"
	events := []*model.CanonicalEvent{
		firewallEvent(model.SourcePaloAlto, "pa-1", t0, pair),
		firewallEvent(model.SourcePaloAlto, "pa-2", t0.Add(10*time.Second), pair),
		firewallEvent(model.SourceFortiGate, "fg-1", t0.Add(20*time.Second), pair),
	}
	clusters := e.Correlate(events, nil)

	seen := make(map[string]int)
	for _, c := range clusters {
		for _, id := range c.EventIDs() {
			seen[id]++
		}
	}
	assert.Equal(t, map[string]int{"pa-1": 1, "pa-2": 1, "fg-1": 1}, seen)

	pairs := clustersByStrategy(clusters, StrategyNATPair)
	require.Len(t, pairs, 1)
	assert.Equal(t, []string{"pa-1", "fg-1"}, pairs[0].EventIDs())
}

func TestSortedMembersInvariant(t *testing.T) {
	e := testEngine(testConfig())

	events := []*model.CanonicalEvent{
		firewallEvent(model.SourceFortiGate, "fg-1", t0.Add(time.Minute), "10.0.0.5:51000->8.8.8.8:443"),
		firewallEvent(model.SourcePaloAlto, "pa-1", t0, "10.0.0.5:51000->8.8.8.8:443"),
	}
	clusters := e.Correlate(events, nil)
	for _, c := range clusters {
		require.NotEmpty(t, c.Events)
		for i := 1; i < len(c.Events); i++ {
			assert.False(t, c.Events[i].OccurredAt.Before(c.Events[i-1].OccurredAt))
		}
	}
}

func TestDegradedSources(t *testing.T) {
	e := testEngine(testConfig())
	degraded := map[model.SourceType]bool{model.SourceFortiGate: true}

	t.Run("strategy clusters touching a degraded source are flagged", func(t *testing.T) {
		events := []*model.CanonicalEvent{
			firewallEvent(model.SourcePaloAlto, "pa-1", t0, "10.0.0.5:51000->8.8.8.8:443"),
			firewallEvent(model.SourceFortiGate, "fg-1", t0.Add(time.Minute), "10.0.0.5:51000->8.8.8.8:443"),
		}
		clusters := e.Correlate(events, degraded)
		require.Len(t, clusters, 1)
		assert.True(t, clusters[0].Incomplete)
	})

	t.Run("singleton whose counterpart stream failed is flagged", func(t *testing.T) {
		events := []*model.CanonicalEvent{
			firewallEvent(model.SourcePaloAlto, "pa-1", t0, "10.0.0.99:1->8.8.8.8:443"),
		}
		clusters := e.Correlate(events, degraded)
		require.Len(t, clusters, 1)
		assert.Equal(t, StrategySingleton, clusters[0].Strategy)
		assert.True(t, clusters[0].Incomplete)
	})

	t.Run("unrelated singleton is not flagged", func(t *testing.T) {
		events := []*model.CanonicalEvent{
			event(model.SourceManageEngine, "me-1", t0, model.ActionConfigChange, map[model.KeyKind]string{
				model.KeyHost: "srv-db-01",
			}),
		}
		clusters := e.Correlate(events, degraded)
		require.Len(t, clusters, 1)
		assert.False(t, clusters[0].Incomplete)
	})
}

func TestMinConfidenceFilter(t *testing.T) {
	cfg := testConfig()
	cfg.MinConfidence = 0.7
	e := testEngine(cfg)

	events := []*model.CanonicalEvent{
		// Fallback email match at 0.6: filtered out.
		event(model.SourceSpamFilter, "sp-1", t0, model.ActionAllow, map[model.KeyKind]string{
			model.KeySubjectSender: "Invoice|alice@example.com",
		}),
		event(model.SourceTrendEmail, "te-1", t0.Add(time.Hour), model.ActionDeny, map[model.KeyKind]string{
			model.KeySubjectSender: "Invoice|alice@example.com",
		}),
		// Exact firewall match at 1.0: kept.
		firewallEvent(model.SourcePaloAlto, "pa-1", t0, "10.0.0.5:51000->8.8.8.8:443"),
		firewallEvent(model.SourceFortiGate, "fg-1", t0.Add(time.Minute), "10.0.0.5:51000->8.8.8.8:443"),
	}
	clusters := e.Correlate(events, nil)
	require.Len(t, clusters, 1)
	assert.Equal(t, StrategyNATPair, clusters[0].Strategy)
}

func TestStableClusterIDs(t *testing.T) {
	e := testEngine(testConfig())
	events := func() []*model.CanonicalEvent {
		return []*model.CanonicalEvent{
			firewallEvent(model.SourcePaloAlto, "pa-1", t0, "10.0.0.5:51000->8.8.8.8:443"),
			firewallEvent(model.SourceFortiGate, "fg-1", t0.Add(time.Minute), "10.0.0.5:51000->8.8.8.8:443"),
		}
	}
	a := e.Correlate(events(), nil)
	b := e.Correlate(events(), nil)
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].ClusterID, b[0].ClusterID)
}
