package relay

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultStreamMaxLen  int64 = 1000
	DefaultStreamIdleTTL       = 30 * time.Minute

	// streamStart reads a stream that does not exist yet from the beginning.
	streamStart = "0-0"
)

var errBusClosed = errors.New("relay bus closed")

// RedisConfig selects the Redis Streams backend.
type RedisConfig struct {
	Addr         string
	StreamPrefix string
	// MaxLen caps each room stream; older entries are trimmed on publish.
	MaxLen int64
	// IdleTTL removes a room stream this long after its last publish.
	IdleTTL time.Duration
}

// NewRedisBus returns a bus backed by Redis Streams so several API instances
// share rooms. Subscribers read in fan-out mode: every connection sees every
// event published after its Subscribe call returned. Room streams are capped
// and expire once the room goes quiet, so transcripts do not outlive the game.
func NewRedisBus(ctx context.Context, cfg RedisConfig, logger watermill.LoggerAdapter) (*WatermillBus, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis at %s", cfg.Addr)
	}

	if cfg.MaxLen <= 0 {
		cfg.MaxLen = DefaultStreamMaxLen
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultStreamIdleTTL
	}
	prefix := cfg.StreamPrefix
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultTopicPrefix
	}

	// The publisher owns the client: its Close closes the connection pool.
	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:        client,
		Marshaller:    rstream.DefaultMarshallerUnmarshaller{},
		DefaultMaxlen: cfg.MaxLen,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "create redis stream publisher")
	}

	streams := &redisStreams{
		client:  client,
		logger:  logger,
		closing: make(chan struct{}),
	}

	return &WatermillBus{
		publisher:   pub,
		subscriber:  streams,
		topicPrefix: prefix,
		touch: func(ctx context.Context, topic string) error {
			return client.Expire(ctx, topic, cfg.IdleTTL).Err()
		},
		closers: []func() error{streams.Close, pub.Close},
	}, nil
}

// redisStreams subscribes each caller from the stream position current at the
// time of the call.
type redisStreams struct {
	client *redis.Client
	logger watermill.LoggerAdapter

	closeOnce sync.Once
	closing   chan struct{}
}

// lastID returns the newest entry ID of topic, or the stream start when the
// topic has no entries.
func (r *redisStreams) lastID(ctx context.Context, topic string) (string, error) {
	entries, err := r.client.XRevRangeN(ctx, topic, "+", "-", 1).Result()
	if err != nil {
		return "", errors.Wrapf(err, "read last id of %s", topic)
	}
	if len(entries) == 0 {
		return streamStart, nil
	}
	return entries[0].ID, nil
}

func (r *redisStreams) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	select {
	case <-r.closing:
		return nil, errBusClosed
	default:
	}

	startID, err := r.lastID(ctx, topic)
	if err != nil {
		return nil, err
	}

	// Each subscription gets its own subscriber so the start ID is fixed before
	// Subscribe returns. It is released through its context: Subscriber.Close
	// would close the shared client.
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:         r.client,
		Unmarshaller:   rstream.DefaultMarshallerUnmarshaller{},
		FanOutOldestId: startID,
		ShouldStopOnReadErrors: func(err error) bool {
			return errors.Is(err, redis.ErrClosed)
		},
	}, r.logger)
	if err != nil {
		return nil, errors.Wrap(err, "create redis stream subscriber")
	}

	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-r.closing:
			cancel()
		case <-subCtx.Done():
		}
	}()

	messages, err := sub.Subscribe(subCtx, topic)
	if err != nil {
		cancel()
		return nil, err
	}
	return messages, nil
}

// Close ends every open subscription.
func (r *redisStreams) Close() error {
	r.closeOnce.Do(func() { close(r.closing) })
	return nil
}
