package events

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// DefaultSubject is used when NATSConfig.Subject is empty.
const DefaultSubject = "tapflow.dwell"

// NATSConfig holds NATS connection settings. An empty URL disables NATS.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Subject string `yaml:"subject"`
}

type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATS publishes events to a NATS subject.
type NATS struct {
	conn    natsConn
	subject string
}

// NewNATS connects to the server in cfg.
func NewNATS(cfg NATSConfig, clientID string) (*NATS, error) {
	opts := []nats.Option{
		nats.Name("tapflow " + clientID),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	return newNATS(conn, cfg.Subject), nil
}

func newNATS(conn natsConn, subject string) *NATS {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATS{conn: conn, subject: subject}
}

// Publish implements Publisher.
func (p *NATS) Publish(ctx context.Context, e Event) error {
	payload, err := e.Marshal()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}

// Close implements Publisher.
func (p *NATS) Close() {
	if err := p.conn.Drain(); err != nil {
		log.Debugf("NATS drain: %v", err)
	}
}
