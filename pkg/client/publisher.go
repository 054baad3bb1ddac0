package client

import (
	"fmt"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	"github.com/yourusername/quantstream/pkg/model"
)

// NATSPublisher publishes ticks on the subjects NATSLiveSource reads.
type NATSPublisher struct {
	conn   *nats.Conn
	owned  bool
	prefix string
	codec  Codec

	published atomic.Int64
}

// NewNATSPublisher connects to url.
func NewNATSPublisher(url, prefix string, codec Codec) (*NATSPublisher, error) {
	conn, err := Connect(url, "pairstream-tickfeed")
	if err != nil {
		return nil, err
	}
	p := NewNATSPublisherConn(conn, prefix, codec)
	p.owned = true
	return p, nil
}

// NewNATSPublisherConn uses an existing connection; Close leaves it open.
func NewNATSPublisherConn(conn *nats.Conn, prefix string, codec Codec) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{conn: conn, prefix: prefix, codec: codec}
}

// Publish sends one tick for sel.
func (p *NATSPublisher) Publish(sel model.Selection, tick model.LiveTick) error {
	data, err := EncodeTick(p.codec, tick)
	if err != nil {
		return err
	}
	subject := Subject(p.prefix, sel)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.published.Add(1)
	return nil
}

// Published returns the number of ticks sent.
func (p *NATSPublisher) Published() int64 {
	return p.published.Load()
}

// Close flushes and closes an owned connection.
func (p *NATSPublisher) Close() error {
	if !p.owned || p.conn == nil {
		return nil
	}
	err := p.conn.Flush()
	p.conn.Close()
	return err
}
