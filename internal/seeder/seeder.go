// Package seeder indexes synthetic log records into the log store so the
// pipeline can be exercised without live appliances. Generated documents
// use the same field names the normalizers project.
package seeder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/kestrelsec/kestrel/common/logging"
	"github.com/kestrelsec/kestrel/internal/gateway"
	"github.com/kestrelsec/kestrel/internal/model"
)

// Seeder generates and bulk-indexes synthetic records.
type Seeder struct {
	client *gateway.Client
	faker  *gofakeit.Faker
	log    *logging.Logger
}

// New creates a seeder. seed fixes the generator so repeated runs produce
// the same documents.
func New(client *gateway.Client, seed uint64, log *logging.Logger) *Seeder {
	return &Seeder{
		client: client,
		faker:  gofakeit.New(seed),
		log:    log,
	}
}

// Seed indexes count documents per source family, spread uniformly over
// the interval ending at now.
func (s *Seeder) Seed(ctx context.Context, count int, window time.Duration) error {
	now := time.Now().UTC()
	from := now.Add(-window)

	for _, source := range model.AllSources() {
		index := indexName(source, now)
		docs := make([]map[string]interface{}, 0, count)
		for i := 0; i < count; i++ {
			at := from.Add(time.Duration(s.faker.IntRange(0, int(window.Seconds()))) * time.Second)
			docs = append(docs, s.document(source, at))
		}
		if err := s.bulkIndex(ctx, index, docs); err != nil {
			return fmt.Errorf("seed %s: %w", source, err)
		}
		s.log.Info("seeded source", "source_type", string(source), "index", index, "count", count)
	}
	return nil
}

// document builds one synthetic record in the source's native schema.
func (s *Seeder) document(source model.SourceType, at time.Time) map[string]interface{} {
	doc := map[string]interface{}{
		"@timestamp": at.Format(time.RFC3339Nano),
	}

	switch source {
	case model.SourcePaloAlto, model.SourceFortiGate:
		doc["src_ip"] = s.faker.IPv4Address()
		doc["src_port"] = fmt.Sprintf("%d", s.faker.IntRange(1024, 65535))
		doc["dst_ip"] = s.faker.IPv4Address()
		doc["dst_port"] = fmt.Sprintf("%d", s.faker.IntRange(1, 1024))
		doc["action"] = s.faker.RandomString([]string{"allow", "deny", "drop", "alert"})
	case model.SourceSpamFilter, model.SourceTrendEmail:
		doc["message_id"] = fmt.Sprintf("<%s@%s>", s.faker.UUID(), s.faker.DomainName())
		doc["sender"] = s.faker.Email()
		doc["recipient"] = s.faker.Email()
		doc["subject"] = s.faker.Sentence(4)
		doc["action"] = s.faker.RandomString([]string{"delivered", "blocked", "quarantined"})
	case model.SourceTrendApex:
		doc["host"] = s.faker.AppName()
		doc["threat"] = s.faker.HackerVerb()
		doc["action"] = s.faker.RandomString([]string{"detection", "quarantined", "scan"})
	case model.SourceWindowsEvents:
		doc["host"] = s.faker.AppName()
		doc["account"] = s.faker.Username()
		doc["event_id"] = s.faker.RandomString([]string{"4624", "4625", "4740", "4688"})
	case model.SourceManageEngine:
		doc["technician"] = s.faker.Username()
		doc["asset"] = s.faker.AppName()
		doc["operation"] = s.faker.RandomString([]string{"config_change", "update", "scan"})
	}
	return doc
}

// bulkIndex sends one _bulk request for the batch.
func (s *Seeder) bulkIndex(ctx context.Context, index string, docs []map[string]interface{}) error {
	var buf bytes.Buffer
	for _, doc := range docs {
		meta := map[string]interface{}{"index": map[string]interface{}{"_index": index}}
		if err := json.NewEncoder(&buf).Encode(meta); err != nil {
			return fmt.Errorf("encode bulk meta: %w", err)
		}
		if err := json.NewEncoder(&buf).Encode(doc); err != nil {
			return fmt.Errorf("encode bulk doc: %w", err)
		}
	}

	os := s.client.Client()
	res, err := os.Bulk(bytes.NewReader(buf.Bytes()), os.Bulk.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk indexing failed: %s", res.Status())
	}
	return nil
}

// indexName builds a dated concrete index behind the source's pattern.
func indexName(source model.SourceType, at time.Time) string {
	switch source {
	case model.SourcePaloAlto:
		return "paloalto-" + at.Format("2006.01.02")
	case model.SourceFortiGate:
		return "fortigate-" + at.Format("2006.01.02")
	case model.SourceSpamFilter:
		return "spam-filter-" + at.Format("2006.01.02")
	case model.SourceTrendEmail:
		return "trend-email-" + at.Format("2006.01.02")
	case model.SourceTrendApex:
		return "trend-apex-" + at.Format("2006.01.02")
	case model.SourceWindowsEvents:
		return "winlogbeat-" + at.Format("2006.01.02")
	case model.SourceManageEngine:
		return "manageengine-" + at.Format("2006.01.02")
	default:
		return string(source)
	}
}
