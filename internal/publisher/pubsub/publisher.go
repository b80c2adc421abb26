// Package pubsub announces finished batches on a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/JakeFAU/realtime-news-aggregator/internal/news"
)

// Publisher wraps a Pub/Sub publisher client.
type Publisher struct {
	publisher *pubsub.Publisher
}

// New creates a Publisher for the provided topic publisher.
func New(publisher *pubsub.Publisher) *Publisher {
	return &Publisher{publisher: publisher}
}

// Dial opens a client for projectID and returns a Publisher for topic along
// with a function that stops the publisher and closes the client.
func Dial(ctx context.Context, projectID, topic string) (*Publisher, func() error, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	p := client.Publisher(topic)
	closer := func() error {
		p.Stop()
		if err := client.Close(); err != nil {
			return fmt.Errorf("close pubsub client: %w", err)
		}
		return nil
	}
	return New(p), closer, nil
}

// Publish marshals the notice to JSON and publishes it, waiting for the server ID.
func (p *Publisher) Publish(ctx context.Context, notice news.Notice) (string, error) {
	if p.publisher == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	msg, err := encode(notice)
	if err != nil {
		return "", err
	}
	id, err := p.publisher.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

func encode(notice news.Notice) (*pubsub.Message, error) {
	data, err := json.Marshal(notice)
	if err != nil {
		return nil, fmt.Errorf("marshal notice: %w", err)
	}
	return &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"run_id": notice.RunID,
			"total":  strconv.Itoa(notice.Total),
			"failed": strconv.Itoa(len(notice.Failed)),
		},
	}, nil
}
