// Package redisstore implements positionstore.PositionStore on
// github.com/redis/go-redis/v9, grounded on LerianStudio-midaz's redis
// client usage. Redis gives low-latency cursor upserts for high-throughput
// projector/saga consumers; it does not back the EventStore itself (spec
// doesn't require a durable append-only log from redis, and nothing in the
// retrieved pack shows one).
package redisstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/benjaminabbitt/angzarr-core/internal/positionstore"
	"github.com/benjaminabbitt/angzarr-core/pb"
)

type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store { return &Store{client: client} }

var _ positionstore.PositionStore = (*Store)(nil)

func key(handler, domain, edition string, root uuid.UUID) string {
	if edition == "" {
		edition = pb.MainTimeline
	}
	return fmt.Sprintf("angzarr:position:%s:%s:%s:%s", handler, domain, edition, root.String())
}

func (s *Store) Get(ctx context.Context, handler, domain, edition string, root uuid.UUID) (uint64, bool, error) {
	v, err := s.client.Get(ctx, key(handler, domain, edition, root)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redisstore: get: %w", err)
	}
	seq, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("redisstore: parse: %w", err)
	}
	return seq, true, nil
}

func (s *Store) Put(ctx context.Context, handler, domain, edition string, root uuid.UUID, seq uint64) error {
	return s.client.Set(ctx, key(handler, domain, edition, root), seq, 0).Err()
}
