package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const DefaultBridgeChannel = "taskeer:hub"

// Bridge relays hub envelopes through redis pub/sub so that every server
// instance delivers room and user frames to its own connections.
type Bridge struct {
	rc      *redis.Client
	channel string
	hub     *Hub
	log     logrus.FieldLogger
	// ready is closed once the first subscription is confirmed.
	ready chan struct{}
}

func NewBridge(rc *redis.Client, channel string, hub *Hub, log logrus.FieldLogger) *Bridge {
	if channel == "" {
		channel = DefaultBridgeChannel
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Bridge{
		rc:      rc,
		channel: channel,
		hub:     hub,
		log:     log.WithField("component", "bridge"),
		ready:   make(chan struct{}),
	}
}

func (b *Bridge) Publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.rc.Publish(ctx, b.channel, payload).Err()
}

// Ready is closed after the subscriber is attached.
func (b *Bridge) Ready() <-chan struct{} { return b.ready }

// Run subscribes and hands every envelope to the local hub until ctx ends,
// resubscribing when the pub/sub channel closes.
func (b *Bridge) Run(ctx context.Context) {
	first := true
	for {
		sub := b.rc.Subscribe(ctx, b.channel)
		if _, err := sub.Receive(ctx); err != nil {
			sub.Close()
			if ctx.Err() != nil {
				return
			}
			b.log.WithError(err).Error("subscribe failed, retrying")
			time.Sleep(time.Second)
			continue
		}
		if first {
			close(b.ready)
			first = false
		}

		ch := sub.Channel()
	receive:
		for {
			select {
			case <-ctx.Done():
				sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break receive
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.log.WithError(err).Error("unable to parse envelope")
					continue
				}
				b.hub.Deliver(env)
			}
		}
		sub.Close()
		if ctx.Err() != nil {
			return
		}
		b.log.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
