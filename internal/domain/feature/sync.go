package feature

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const catalogChannel = "features:catalog"

// Notifier announces catalog writes to other API instances.
type Notifier interface {
	CatalogChanged(ctx context.Context, code string) error
}

type catalogEvent struct {
	Code             string `json:"code"`
	SenderInstanceID string `json:"sender_instance_id"`
}

// Sync keeps catalog snapshots of several API instances coherent over Redis Pub/Sub.
// A write on one instance drops the snapshot everywhere else.
type Sync struct {
	redis      *redis.Client
	svc        *Service
	instanceID string
	pubsub     *redis.PubSub
}

func NewSync(client *redis.Client, svc *Service) *Sync {
	return &Sync{redis: client, svc: svc, instanceID: uuid.NewString()}
}

// CatalogChanged publishes a change of code.
func (s *Sync) CatalogChanged(ctx context.Context, code string) error {
	data, err := json.Marshal(catalogEvent{Code: code, SenderInstanceID: s.instanceID})
	if err != nil {
		return err
	}
	if err := s.redis.Publish(ctx, catalogChannel, data).Err(); err != nil {
		return fmt.Errorf("publish catalog change: %w", err)
	}
	return nil
}

// Run subscribes and invalidates the local snapshot on remote changes until ctx ends.
func (s *Sync) Run(ctx context.Context) {
	s.pubsub = s.redis.Subscribe(ctx, catalogChannel)
	defer s.pubsub.Close()

	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handle(msg.Payload)
		}
	}
}

func (s *Sync) handle(payload string) {
	var event catalogEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		log.Warn().Err(err).Msg("malformed catalog event")
		return
	}
	if event.SenderInstanceID == s.instanceID {
		return
	}
	s.svc.Invalidate()
	log.Debug().Str("feature_code", event.Code).Msg("catalog snapshot dropped by remote change")
}
