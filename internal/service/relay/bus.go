// Package relay fans room events out to every connection subscribed to a room.
package relay

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/improv-battle/backend/internal/transport"
)

const (
	DefaultTopicPrefix = "improv.room."

	metadataRoom = "room"
)

// Bus carries events between the connections of a room. Each Subscribe call
// receives every event published to the room after it subscribed, in order.
type Bus interface {
	Publish(ctx context.Context, room string, ev transport.Event) error
	Subscribe(ctx context.Context, room string) (<-chan transport.Event, error)
	Close() error
}

// WatermillBus implements Bus on a watermill publisher and a topic subscriber.
type WatermillBus struct {
	publisher   message.Publisher
	subscriber  topicSubscriber
	topicPrefix string
	// touch runs after every publish; the Redis backend uses it to expire idle rooms.
	touch   func(ctx context.Context, topic string) error
	closers []func() error
}

type topicSubscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

var _ Bus = (*WatermillBus)(nil)

// NewMemoryBus returns an in-process bus. Events published to a room with no
// subscribers are dropped. Publish waits for every subscriber to take the
// event, which keeps per-room delivery in publish order.
func NewMemoryBus(logger watermill.LoggerAdapter) *WatermillBus {
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            64,
		BlockPublishUntilSubscriberAck: true,
	}, logger)
	return &WatermillBus{
		publisher:   pubSub,
		subscriber:  pubSub,
		topicPrefix: DefaultTopicPrefix,
		closers:     []func() error{pubSub.Close},
	}
}

func (b *WatermillBus) topic(room string) string {
	return b.topicPrefix + room
}

// Publish sends ev to every subscriber of room.
func (b *WatermillBus) Publish(ctx context.Context, room string, ev transport.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metadataRoom, room)
	msg.SetContext(ctx)

	topic := b.topic(room)
	if err := b.publisher.Publish(topic, msg); err != nil {
		return errors.Wrapf(err, "publish to room %s", room)
	}
	if b.touch != nil {
		if err := b.touch(ctx, topic); err != nil {
			log.Warn().Err(err).Str("component", "relay").Str("room", room).Msg("refresh room expiry failed")
		}
	}
	return nil
}

// Subscribe streams room events until ctx is cancelled or the bus closes.
func (b *WatermillBus) Subscribe(ctx context.Context, room string) (<-chan transport.Event, error) {
	messages, err := b.subscriber.Subscribe(ctx, b.topic(room))
	if err != nil {
		return nil, errors.Wrapf(err, "subscribe to room %s", room)
	}

	out := make(chan transport.Event, 32)
	go func() {
		defer close(out)
		for msg := range messages {
			var ev transport.Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				log.Warn().Err(err).Str("component", "relay").Str("room", room).Msg("dropping undecodable event")
				msg.Ack()
				continue
			}
			msg.Ack()

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close releases the underlying pub/sub resources.
func (b *WatermillBus) Close() error {
	var firstErr error
	for _, closeFn := range b.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
