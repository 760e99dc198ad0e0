// Package risk scores incident candidates. Scoring is a pure function of
// the cluster and the rule table: no clock, no external state.
package risk

import (
	"github.com/kestrelsec/kestrel/internal/config"
	"github.com/kestrelsec/kestrel/internal/model"
)

// Escalation reason labels attached to candidates.
const (
	ReasonEmailDivergence = "email-filter-divergence"
	ReasonAuthChain       = "auth-failure-chain"
)

// memberWeight is the per-event contribution to the base score before the
// cluster confidence is applied.
const memberWeight = 10

// Scorer evaluates the escalation rule table over a cluster.
type Scorer struct {
	emailDivergenceBonus int
	authChainBonus       int
}

// New creates a scorer with the configured bonuses.
func New(cfg config.RiskConfig) *Scorer {
	return &Scorer{
		emailDivergenceBonus: cfg.EmailDivergenceBonus,
		authChainBonus:       cfg.AuthChainBonus,
	}
}

// Score computes the risk score and escalation reasons for a cluster.
// Base score is member count weighted by confidence; named rule hits add
// fixed bonuses; the result is clamped to [0,100].
func (s *Scorer) Score(cluster *model.CorrelatedCluster) (int, []string) {
	score := int(float64(memberWeight*len(cluster.Events)) * cluster.Confidence)
	var reasons []string

	if s.emailDivergence(cluster) {
		score += s.emailDivergenceBonus
		reasons = append(reasons, ReasonEmailDivergence)
	}
	if s.authChain(cluster) {
		score += s.authChainBonus
		reasons = append(reasons, ReasonAuthChain)
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score, reasons
}

// emailDivergence fires when the first-pass filter let a message through
// that the second-pass filter then blocked or quarantined. The same
// message slipping one control is the strongest single signal the
// pipeline sees.
func (s *Scorer) emailDivergence(cluster *model.CorrelatedCluster) bool {
	firstPassAllowed := false
	secondPassBlocked := false
	for _, ev := range cluster.Events {
		switch ev.Source {
		case model.SourceSpamFilter:
			if ev.Action == model.ActionAllow {
				firstPassAllowed = true
			}
		case model.SourceTrendEmail:
			if ev.Action == model.ActionDeny || ev.Action == model.ActionQuarantine {
				secondPassBlocked = true
			}
		}
	}
	return firstPassAllowed && secondPassBlocked
}

// authChain fires on failed logins followed by a lockout followed by a
// process creation on the same host, in occurrence order. Members are
// already sorted ascending, so one forward pass per host suffices.
func (s *Scorer) authChain(cluster *model.CorrelatedCluster) bool {
	type progress struct {
		failed bool
		locked bool
	}
	perHost := make(map[string]*progress)

	for _, ev := range cluster.Events {
		host := ev.Key(model.KeyHost)
		if host == "" {
			continue
		}
		p := perHost[host]
		if p == nil {
			p = &progress{}
			perHost[host] = p
		}
		switch ev.Action {
		case model.ActionLoginFailed:
			p.failed = true
		case model.ActionLockout:
			if p.failed {
				p.locked = true
			}
		case model.ActionProcessCreate:
			if p.locked {
				return true
			}
		}
	}
	return false
}
