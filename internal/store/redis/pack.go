package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fixl-developer/tma-automation/internal/store"
	"github.com/fixl-developer/tma-automation/pkg/types"
)

func (s *Store) packKey(id string) string {
	return s.prefix + "pack:" + id
}

// packIndexKey is an insertion-ordered list; dispatch candidate ordering
// depends on it.
func (s *Store) packIndexKey() string {
	return s.prefix + "packs"
}

// PutPack stores a pack and registers it in the ordered pack index.
func (s *Store) PutPack(ctx context.Context, pack types.Pack) error {
	data, err := json.Marshal(pack)
	if err != nil {
		return fmt.Errorf("marshaling pack: %w", err)
	}
	existed, err := s.client.Exists(ctx, s.packKey(pack.ID)).Result()
	if err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.packKey(pack.ID), data, 0)
	if existed == 0 {
		pipe.RPush(ctx, s.packIndexKey(), pack.ID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// GetPack retrieves a pack by ID.
func (s *Store) GetPack(ctx context.Context, id string) (*types.Pack, error) {
	data, err := s.client.Get(ctx, s.packKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var pack types.Pack
	if err := json.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("unmarshaling pack %q: %w", id, err)
	}
	return &pack, nil
}

// ListPacks returns packs in insertion order.
func (s *Store) ListPacks(ctx context.Context) ([]types.Pack, error) {
	ids, err := s.client.LRange(ctx, s.packIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]types.Pack, 0, len(ids))
	for _, id := range ids {
		pack, err := s.GetPack(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *pack)
	}
	return out, nil
}

// DeprecatePack flips the pack status to DEPRECATED. The record stays
// readable; nothing is removed from the index.
func (s *Store) DeprecatePack(ctx context.Context, id string) error {
	pack, err := s.GetPack(ctx, id)
	if err != nil {
		return err
	}
	pack.Status = types.PackDeprecated
	pack.UpdatedAt = time.Now()
	return s.PutPack(ctx, *pack)
}
