package storage

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
)

// ChatChannel is the Redis channel every server instance relays chat
// frames through.
const ChatChannel = "chat:messages"

// PublishMessage publishes a raw relay envelope to the other instances.
func (s *Service) PublishMessage(ctx context.Context, payload []byte) error {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.Publish(ctx, ChatChannel, payload).Err()
}

// SubscribeMessages delivers every payload published on ChatChannel
// until ctx is cancelled. The returned channel is closed on exit.
func (s *Service) SubscribeMessages(ctx context.Context) <-chan []byte {
	out := make(chan []byte, 64)
	if s.Redis == nil {
		close(out)
		return out
	}

	pubsub := s.Redis.Subscribe(ctx, ChatChannel)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	log.Printf("INFO: subscribed to redis channel %s", ChatChannel)
	return out
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}
