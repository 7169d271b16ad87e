package rabbitmq

import (
	"fmt"
	"net/url"
	"strings"

	rabbithole "github.com/michaelklishin/rabbit-hole/v2"

	"queue-purger/internal/config"
	"queue-purger/internal/models"
	"queue-purger/internal/queue"
)

// Management reads queue state through the RabbitMQ management HTTP API.
type Management struct {
	client *rabbithole.Client
	vhost  string
}

var _ queue.Lister = (*Management)(nil)

func NewManagement(cfg config.Config) (*Management, error) {
	endpoint, username, password := managementCredentials(cfg.ManagementEndpoint(), cfg.Username, cfg.Password)
	client, err := rabbithole.NewClient(endpoint, username, password)
	if err != nil {
		return nil, fmt.Errorf("management client for %s: %w", endpoint, err)
	}
	return &Management{client: client, vhost: cfg.VirtualHost}, nil
}

// managementCredentials strips user info from the endpoint. Credentials
// embedded in the URI take precedence over the broker credentials.
func managementCredentials(endpoint, username, password string) (string, string, string) {
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" {
		return strings.TrimSuffix(endpoint, "/"), username, password
	}
	if parsed.User != nil {
		username = parsed.User.Username()
		if pwd, ok := parsed.User.Password(); ok {
			password = pwd
		}
	}
	return fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host), username, password
}

// ListQueues returns every queue in the virtual host.
func (m *Management) ListQueues() ([]models.QueueStatus, error) {
	queues, err := m.client.ListQueuesIn(m.vhost)
	if err != nil {
		return nil, fmt.Errorf("failed to list queues in %q: %w", m.vhost, err)
	}

	out := make([]models.QueueStatus, 0, len(queues))
	for _, q := range queues {
		out = append(out, models.QueueStatus{
			Queue:     q.Name,
			Found:     true,
			Messages:  q.Messages,
			Consumers: q.Consumers,
		})
	}
	return out, nil
}
