package realtime

import (
	"context"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const feedRedialDelay = 3 * time.Second

// Feed consumes an upstream websocket change feed and republishes every
// parsed event into the local broker. It is the transport layer beneath the
// sync core: a dropped connection is redialed here, while the core itself
// never retries anything.
type Feed struct {
	rawURL string
	broker *Broker
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFeed builds a Feed pumping rawURL into broker.
func NewFeed(rawURL string, broker *Broker) *Feed {
	return &Feed{rawURL: rawURL, broker: broker}
}

// Start dials the feed and pumps events until Stop is called. The initial
// dial failure is returned so a misconfigured feed is visible at startup;
// later drops are redialed with a fixed delay.
func (f *Feed) Start(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.rawURL, nil)
	if err != nil {
		return err
	}

	ctx, f.cancel = context.WithCancel(ctx)
	f.done = make(chan struct{})
	go f.pump(ctx, conn)
	return nil
}

// Stop tears the feed down and waits for the pump to finish.
func (f *Feed) Stop() {
	if f.cancel == nil {
		return
	}
	f.cancel()
	<-f.done
}

func (f *Feed) pump(ctx context.Context, conn *websocket.Conn) {
	defer close(f.done)
	for {
		if conn != nil {
			f.readLoop(ctx, conn)
			conn.Close()
			conn = nil
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(feedRedialDelay):
		}

		next, _, err := websocket.DefaultDialer.DialContext(ctx, f.rawURL, nil)
		if err != nil {
			log.Printf("realtime feed: redial failed: %v", err)
			continue
		}
		log.Printf("realtime feed: reconnected")
		conn = next
	}
}

func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn) {
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stopped:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("realtime feed: read error: %v", err)
			}
			return
		}
		evt, err := ParseEvent(raw)
		if err != nil {
			log.Printf("realtime feed: %v", err)
			continue
		}
		f.broker.Publish(evt)
	}
}
