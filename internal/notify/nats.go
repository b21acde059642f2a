package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes relay messages on a NATS connection.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url, name string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

// Publish is synchronous on the client side; the context is only checked
// before sending.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	return p.conn.Publish(subject, data)
}

// Close flushes buffered messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Flush(); err != nil {
		p.conn.Close()
		return err
	}
	p.conn.Close()
	return nil
}
