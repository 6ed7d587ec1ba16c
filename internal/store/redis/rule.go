package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fixl-developer/tma-automation/internal/store"
	"github.com/fixl-developer/tma-automation/pkg/types"
)

func (s *Store) ruleKey(id string) string {
	return s.prefix + "rule:" + id
}

// PutRule stores a rule and registers it in its pack's ordered rule set.
func (s *Store) PutRule(ctx context.Context, rule types.Rule) error {
	data, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("marshaling rule: %w", err)
	}
	if err := s.client.Set(ctx, s.ruleKey(rule.ID), data, 0).Err(); err != nil {
		return err
	}
	pack, err := s.GetPack(ctx, rule.PackID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, rid := range pack.RuleIDs {
		if rid == rule.ID {
			return nil
		}
	}
	pack.RuleIDs = append(pack.RuleIDs, rule.ID)
	return s.PutPack(ctx, *pack)
}

// GetRule retrieves a rule by ID.
func (s *Store) GetRule(ctx context.Context, id string) (*types.Rule, error) {
	data, err := s.client.Get(ctx, s.ruleKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rule types.Rule
	if err := json.Unmarshal(data, &rule); err != nil {
		return nil, fmt.Errorf("unmarshaling rule %q: %w", id, err)
	}
	return &rule, nil
}

// ListRules returns all rules in pack-then-rule insertion order.
func (s *Store) ListRules(ctx context.Context) ([]types.Rule, error) {
	packs, err := s.ListPacks(ctx)
	if err != nil {
		return nil, err
	}
	var out []types.Rule
	for _, pack := range packs {
		for _, rid := range pack.RuleIDs {
			rule, err := s.GetRule(ctx, rid)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			out = append(out, *rule)
		}
	}
	return out, nil
}

// DeleteRule removes a rule and deregisters it from its pack.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	rule, err := s.GetRule(ctx, id)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.ruleKey(id)).Err(); err != nil {
		return err
	}
	pack, err := s.GetPack(ctx, rule.PackID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	kept := pack.RuleIDs[:0]
	for _, rid := range pack.RuleIDs {
		if rid != id {
			kept = append(kept, rid)
		}
	}
	pack.RuleIDs = kept
	return s.PutPack(ctx, *pack)
}
