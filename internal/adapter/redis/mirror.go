package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pscheid92/tilecast/internal/domain"
	"github.com/pscheid92/tilecast/internal/wire"
	goredis "github.com/redis/go-redis/v9"
)

const (
	Channel   = "tilecast:recommendations"
	LatestKey = "tilecast:latest"
)

// Applier is the local relay a replica feeds mirrored payloads into.
type Applier interface {
	Apply(ctx context.Context, p domain.Payload) error
}

type Mirror struct {
	rdb *goredis.Client
}

func NewMirror(rdb *goredis.Client) *Mirror {
	return &Mirror{rdb: rdb}
}

// Publish stores p as the shared latest value and announces it to replicas in one round trip.
func (m *Mirror) Publish(ctx context.Context, p domain.Payload) error {
	data, err := wire.Encode(p)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	_, err = m.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, LatestKey, data, 0)
		pipe.Publish(ctx, Channel, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish payload: %w", err)
	}
	return nil
}

// Reset forgets the shared latest value. A starting primary calls it so that
// replicas never seed from a previous run.
func (m *Mirror) Reset(ctx context.Context) error {
	if err := m.rdb.Del(ctx, LatestKey).Err(); err != nil {
		return fmt.Errorf("failed to clear latest payload: %w", err)
	}
	return nil
}

// Latest returns the payload last published by the primary, or ok=false when there is none.
func (m *Mirror) Latest(ctx context.Context) (domain.Payload, bool, error) {
	data, err := m.rdb.Get(ctx, LatestKey).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.Payload{}, false, nil
	}
	if err != nil {
		return domain.Payload{}, false, fmt.Errorf("failed to read latest payload: %w", err)
	}

	p, err := wire.Decode(data)
	if err != nil {
		return domain.Payload{}, false, fmt.Errorf("stored latest payload: %w", err)
	}
	return p, true, nil
}

// Follow subscribes before seeding from the stored latest value, so nothing
// published in between is lost, then applies every mirrored payload until ctx ends.
func (m *Mirror) Follow(ctx context.Context, dst Applier) error {
	pubsub := m.rdb.Subscribe(ctx, Channel)
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", Channel, err)
	}

	if p, ok, err := m.Latest(ctx); err != nil {
		slog.Warn("Could not seed replica from latest payload", "error", err)
	} else if ok {
		if err := dst.Apply(ctx, p); err != nil {
			slog.Warn("Seed payload rejected", "error", err)
		}
	}

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			m.handleMessage(ctx, dst, msg.Payload)
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *Mirror) handleMessage(ctx context.Context, dst Applier, data string) {
	p, err := wire.Decode([]byte(data))
	if err != nil {
		slog.Warn("Dropping malformed mirrored payload", "error", err)
		return
	}
	if err := dst.Apply(ctx, p); err != nil {
		slog.Warn("Mirrored payload not applied", "error", err)
	}
}
