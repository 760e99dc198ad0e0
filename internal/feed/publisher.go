// Package feed publishes incident candidates and run reports to NATS so
// downstream consumers (dashboards, ticketing bridges) react without
// polling the repository.
package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kestrelsec/kestrel/common/logging"
	"github.com/kestrelsec/kestrel/internal/config"
	"github.com/kestrelsec/kestrel/internal/model"
)

// Publisher sends pipeline output to NATS. A disabled publisher is a
// no-op so the pipeline runs unchanged without a broker.
type Publisher struct {
	conn *nats.Conn
	log  *logging.Logger
}

// NewPublisher connects to NATS. Returns a no-op publisher when the feed
// is disabled in configuration.
func NewPublisher(cfg config.NATSConfig, log *logging.Logger) (*Publisher, error) {
	if !cfg.Enabled {
		return &Publisher{log: log}, nil
	}

	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("nats feed connected", "url", cfg.URL)
	return &Publisher{conn: conn, log: log}, nil
}

// IncidentCreated announces a freshly scored incident candidate.
func (p *Publisher) IncidentCreated(candidate *model.IncidentCandidate) error {
	return p.publish(SubjectIncidentsCreated, incidentMessage{
		Incident:    candidate,
		PublishedAt: time.Now().UTC(),
	})
}

// RunCompleted announces a finished hunt run.
func (p *Publisher) RunCompleted(report *model.RunReport) error {
	return p.publish(SubjectRunsCompleted, runMessage{
		Report:      report,
		PublishedAt: time.Now().UTC(),
	})
}

func (p *Publisher) publish(subject string, msg interface{}) error {
	if p.conn == nil {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal feed message: %w", err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.log.Warn("nats drain failed", "error", err)
	}
}
