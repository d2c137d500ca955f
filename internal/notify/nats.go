package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"vigil/internal/config"
	"vigil/internal/event"
	"vigil/internal/logging"
)

const natsPublishAttempts = 3

type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSSubscriber publishes events to <prefix>.<source id>.
type NATSSubscriber struct {
	conn   natsConn
	prefix string
	sleep  func(time.Duration)
	logger *slog.Logger
}

// NewNATSSubscriber connects to cfg.NATSURL. The client reconnects on its own
// after the initial connection succeeds.
func NewNATSSubscriber(cfg config.Notify, logger *slog.Logger) (*NATSSubscriber, error) {
	logger = logging.NewComponentLogger(logger, "notify-nats")
	conn, err := nats.Connect(cfg.NATSURL,
		nats.Name("vigil"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(time.Duration(max(cfg.RequestTimeout, 1))*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.WarnWithContext(logger, "nats disconnected", "nats_disconnected",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check the NATS server"),
					logging.String(logging.FieldImpact, "events queue until the client reconnects"),
				)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected",
				logging.String(logging.FieldEventType, "nats_reconnected"),
				logging.String("server", nc.ConnectedUrlRedacted()),
			)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return newNATSSubscriber(conn, cfg.NATSSubjectPrefix, logger), nil
}

func newNATSSubscriber(conn natsConn, prefix string, logger *slog.Logger) *NATSSubscriber {
	return &NATSSubscriber{
		conn:   conn,
		prefix: strings.Trim(prefix, "."),
		sleep:  time.Sleep,
		logger: logger,
	}
}

// Name implements Subscriber.
func (s *NATSSubscriber) Name() string { return "nats" }

// Subject returns the subject used for events from sourceID.
func (s *NATSSubscriber) Subject(sourceID string) string {
	token := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(sourceID)
	if token == "" {
		token = "unknown"
	}
	return s.prefix + "." + token
}

// Publish sends the event record, retrying briefly on failure.
func (s *NATSSubscriber) Publish(ctx context.Context, ev *event.Event) error {
	data, err := payload(ev)
	if err != nil {
		return err
	}
	subject := s.Subject(ev.SourceID())
	var lastErr error
	for i := range natsPublishAttempts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = s.conn.Publish(subject, data); lastErr == nil {
			s.logger.Debug("event published",
				logging.String("subject", subject),
				logging.EventID(ev.ID()),
			)
			return nil
		}
		s.sleep(time.Duration(i+1) * 100 * time.Millisecond)
	}
	return fmt.Errorf("nats publish %s after %d attempts: %w", subject, natsPublishAttempts, lastErr)
}

// Close drains pending messages and closes the connection.
func (s *NATSSubscriber) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}
