package client

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/yourusername/quantstream/pkg/model"
)

// DefaultSubjectPrefix is the NATS subject root of live ticks.
const DefaultSubjectPrefix = "pairs.live"

// Subscription is an active live feed for one pair.
type Subscription interface {
	Unsubscribe() error
}

// LiveSource pushes ticks for a selected pair. The handler may be called
// from another goroutine and must not block.
type LiveSource interface {
	Subscribe(sel model.Selection, handler func(model.LiveTick)) (Subscription, error)
}

// Subject returns "{prefix}.{BASE}.{HEDGE}".
func Subject(prefix string, sel model.Selection) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	sel = sel.Normalize()
	return fmt.Sprintf("%s.%s.%s", prefix, sel.BaseSymbol, sel.HedgeSymbol)
}

// Connect dials NATS with reconnects enabled.
func Connect(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[NATS] Disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Printf("[NATS] Reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// NATSLiveSource subscribes to per-pair tick subjects.
type NATSLiveSource struct {
	conn   *nats.Conn
	owned  bool
	prefix string
	codec  Codec

	mu         sync.Mutex
	subs       map[*nats.Subscription]struct{}
	decodeErrs atomic.Int64
}

// NewNATSLiveSource connects to url.
func NewNATSLiveSource(url, prefix string, codec Codec) (*NATSLiveSource, error) {
	conn, err := Connect(url, "pairstream-live")
	if err != nil {
		return nil, err
	}
	src := NewNATSLiveSourceConn(conn, prefix, codec)
	src.owned = true
	return src, nil
}

// NewNATSLiveSourceConn uses an existing connection; Close leaves it open.
func NewNATSLiveSourceConn(conn *nats.Conn, prefix string, codec Codec) *NATSLiveSource {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSLiveSource{
		conn:   conn,
		prefix: prefix,
		codec:  codec,
		subs:   make(map[*nats.Subscription]struct{}),
	}
}

// Subscribe starts delivering ticks of sel to handler. Undecodable payloads
// are counted and dropped.
func (s *NATSLiveSource) Subscribe(sel model.Selection, handler func(model.LiveTick)) (Subscription, error) {
	subject := Subject(s.prefix, sel)
	sub, err := s.conn.Subscribe(subject, func(msg *nats.Msg) {
		tick, err := DecodeTick(s.codec, msg.Data)
		if err != nil {
			if s.decodeErrs.Add(1) == 1 {
				log.Printf("[NATS] Dropping undecodable tick on %s: %v", msg.Subject, err)
			}
			return
		}
		handler(tick)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe %s: %w", subject, err)
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	log.Printf("[NATS] Subscribed to %s (%s)", subject, s.codec)
	return &natsSubscription{src: s, sub: sub}, nil
}

// DecodeErrors returns how many payloads could not be decoded.
func (s *NATSLiveSource) DecodeErrors() int64 {
	return s.decodeErrs.Load()
}

// Close unsubscribes everything and closes an owned connection.
func (s *NATSLiveSource) Close() error {
	s.mu.Lock()
	for sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = make(map[*nats.Subscription]struct{})
	s.mu.Unlock()

	if s.owned && s.conn != nil {
		s.conn.Close()
	}
	return nil
}

type natsSubscription struct {
	src  *NATSLiveSource
	sub  *nats.Subscription
	once sync.Once
}

func (n *natsSubscription) Unsubscribe() error {
	var err error
	n.once.Do(func() {
		n.src.mu.Lock()
		delete(n.src.subs, n.sub)
		n.src.mu.Unlock()
		err = n.sub.Unsubscribe()
		if err == nats.ErrConnectionClosed || err == nats.ErrBadSubscription {
			err = nil
		}
	})
	return err
}
