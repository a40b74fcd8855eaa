package search

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/taskboard/config"
	"example.com/taskboard/internal/models"
)

// ElasticClient indexes audit entries for search. Indexing is best-effort:
// the relational row is the source of truth and an indexing failure is
// logged, never propagated into the consumer result.
type ElasticClient struct {
	client  *elasticsearch.Client
	config  config.ElasticConfig
	enabled bool
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	if !cfg.Enabled {
		return &ElasticClient{enabled: false}, nil
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client:  client,
		config:  cfg,
		enabled: true,
	}, nil
}

// IndexAuditEntry indexes an audit entry after it has been committed
func (c *ElasticClient) IndexAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	if !c.enabled {
		return nil
	}

	log.Debug().Str("audit_id", entry.ID.String()).Msg("Indexing audit entry")

	doc := map[string]interface{}{
		"id":         entry.ID.String(),
		"event_type": entry.EventType,
		"task_id":    entry.TaskID.String(),
		"user_id":    entry.UserID,
		"event_data": json.RawMessage(entry.EventData),
		"timestamp":  entry.Timestamp,
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal audit document")
	}

	req := esapi.IndexRequest{
		Index:      c.config.Prefix + "-audit",
		DocumentID: entry.ID.String(),
		Body:       bytes.NewReader(body),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to index audit entry")
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.Errorf("elasticsearch returned %s indexing audit entry", res.Status())
	}

	return nil
}
