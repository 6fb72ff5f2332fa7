package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/ClareAI/astra-voicenote-service/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
	// PubID prefixes the "name" attribute so subscriptions can filter per environment ("", "beta", "qa").
	PubID string `mapstructure:"pub_id"`
}

type PubSubService struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	config *PubSubConfig
}

// NewPubSubService connects to the project and creates the topic when it does not exist yet.
func NewPubSubService(ctx context.Context, cfg *PubSubConfig, opts ...option.ClientOption) (*PubSubService, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("PubSub project ID is required")
	}
	if cfg.TopicName == "" {
		return nil, fmt.Errorf("PubSub topic name is required")
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create PubSub client: %w", err)
	}

	topic := client.Topic(cfg.TopicName)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to check if topic exists: %w", err)
	}

	if !exists {
		logger.Base().Info("Topic does not exist, creating", zap.String("topic", cfg.TopicName))
		topic, err = client.CreateTopic(ctx, cfg.TopicName)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to create topic %s: %w", cfg.TopicName, err)
		}
	}

	return &PubSubService{
		client: client,
		topic:  topic,
		config: cfg,
	}, nil
}

// PublishJSON publishes v as a JSON message and waits for the server ack.
// The "name" attribute is "<pub_id>:<eventName>:<task_id>", "event" carries eventName.
func (p *PubSubService) PublishJSON(ctx context.Context, eventName string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventName, err)
	}

	taskID := uuid.New().String()
	name := fmt.Sprintf("%s:%s", eventName, taskID)
	if prefix := strings.TrimSuffix(p.config.PubID, ":"); prefix != "" {
		name = prefix + ":" + name
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Attributes: map[string]string{
			"name":  name,
			"event": eventName,
		},
		Data: data,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish %s message: %w", eventName, err)
	}

	logger.Base().Debug("Published event", zap.String("event", eventName), zap.String("task_id", taskID))
	return nil
}

func (p *PubSubService) Close() error {
	if p.topic != nil {
		p.topic.Stop()
	}
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
