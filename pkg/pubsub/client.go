package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/petcare-pricing/pkg/config"
	"github.com/angelmondragon/petcare-pricing/pkg/logger"
	"github.com/angelmondragon/petcare-pricing/pkg/outbox"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("at least one pubsub topic is required")
)

// Client is the Pub/Sub outbox sink. Publishers are opened lazily per topic
// and reused until Close.
type Client struct {
	client    *pubsub.Client
	projectID string
	topics    []string
	ordered   bool
	lookup    func(ctx context.Context, fullName string) error

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

var _ outbox.Sink = (*Client)(nil)

// NewClient connects to Pub/Sub and fails unless every topic already exists.
// Topics are not created here; provisioning owns them.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, topics []string, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	ps, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := newClient(ps, projectID, topics, cfg.Ordered)
	c.lookup = func(ctx context.Context, fullName string) error {
		_, err := ps.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: fullName})
		return err
	}
	if err := c.Ping(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"topics": c.topics, "ordered": c.ordered}), "pubsub.ready")
	}
	return c, nil
}

func newClient(ps *pubsub.Client, projectID string, topics []string, ordered bool) *Client {
	cleaned := make([]string, 0, len(topics))
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	return &Client{
		client:     ps,
		projectID:  projectID,
		topics:     cleaned,
		ordered:    ordered,
		publishers: map[string]*pubsub.Publisher{},
	}
}

// Ping checks that every topic the registry routes to exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.lookup == nil {
		return errors.New("pubsub client not initialized")
	}
	if len(c.topics) == 0 {
		return errNoTopics
	}
	for _, name := range c.topics {
		full := topicResourceName(c.projectID, name)
		if full == "" {
			return fmt.Errorf("topic %q not configured", name)
		}
		if err := c.lookup(ctx, full); err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("topic %q does not exist", name)
			}
			return fmt.Errorf("checking topic %q: %w", name, err)
		}
	}
	return nil
}

// Publisher returns the cached publisher for a topic id or resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := topicResourceName(c.projectID, name)
	if full == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	pub, ok := c.publishers[full]
	if !ok {
		pub = c.client.Publisher(full)
		pub.EnableMessageOrdering = c.ordered
		c.publishers[full] = pub
	}
	return pub
}

// Publish sends one message and waits for the server ack. With ordering on,
// msg.Key is the ordering key, and a failed key is resumed so the outbox
// retry can go through.
func (c *Client) Publish(ctx context.Context, topic string, msg outbox.Message) error {
	pub := c.Publisher(topic)
	if pub == nil {
		return fmt.Errorf("publisher not configured for topic %s", topic)
	}
	out := &pubsub.Message{Data: msg.Data, Attributes: msg.Attributes}
	if c.ordered {
		out.OrderingKey = msg.Key
	}
	if _, err := pub.Publish(ctx, out).Get(ctx); err != nil {
		if out.OrderingKey != "" {
			pub.ResumePublish(out.OrderingKey)
		}
		return err
	}
	return nil
}

// Close flushes pending publishes and releases the client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for _, pub := range c.publishers {
		pub.Stop()
	}
	c.publishers = map[string]*pubsub.Publisher{}
	c.mu.Unlock()
	return c.client.Close()
}

func topicResourceName(projectID, name string) string {
	n := strings.TrimSpace(name)
	switch {
	case n == "":
		return ""
	case strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/"):
		return n
	case strings.TrimSpace(projectID) == "":
		return ""
	}
	return "projects/" + strings.TrimSpace(projectID) + "/topics/" + n
}
