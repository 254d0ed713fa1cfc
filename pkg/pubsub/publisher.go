// Package pubsub publishes back-office events to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/goizzi/backoffice-service/internal/domain"
)

// Publisher wraps a topic handle. Publish results are awaited so that failures surface
// to the caller.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPublisher connects to projectID and binds topicID. opts usually carries
// option.WithCredentialsJSON or option.WithCredentialsFile; without options the
// client uses Application Default Credentials.
func NewPublisher(ctx context.Context, projectID, topicID string, opts ...option.ClientOption) (*Publisher, error) {
	projectID, topicID = strings.TrimSpace(projectID), strings.TrimSpace(topicID)
	if projectID == "" {
		return nil, errors.New("pubsub project id is required")
	}
	if topicID == "" {
		return nil, errors.New("pubsub topic is required")
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &Publisher{client: client, topic: client.Topic(topicID)}, nil
}

// PublishEvent publishes event as JSON with its type as a message attribute.
func (p *Publisher) PublishEvent(ctx context.Context, event domain.BackofficeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_type": event.EventType,
			"event_id":   event.EventID,
		},
	})
	_, err = result.Get(ctx)
	return err
}

// Close flushes pending messages and closes the client.
func (p *Publisher) Close() {
	p.topic.Stop()
	_ = p.client.Close()
}
