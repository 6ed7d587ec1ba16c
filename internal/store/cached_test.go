package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixl-developer/tma-automation/internal/store"
	"github.com/fixl-developer/tma-automation/internal/store/memory"
	"github.com/fixl-developer/tma-automation/internal/testutil"
)

func TestCachedServesStaleWithinTTL(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	require.NoError(t, backend.PutPack(ctx, testutil.MakePack("pack-1")))

	c := store.NewCached(backend, time.Minute)
	packs, err := c.ListPacks(ctx)
	require.NoError(t, err)
	require.Len(t, packs, 1)

	// A write that sidesteps the wrapper stays invisible until the TTL
	// lapses or a wrapped write invalidates.
	require.NoError(t, backend.PutPack(ctx, testutil.MakePack("pack-2")))
	packs, err = c.ListPacks(ctx)
	require.NoError(t, err)
	assert.Len(t, packs, 1)

	rules, err := c.ListRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestCachedRefreshesAfterTTL(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	require.NoError(t, backend.PutPack(ctx, testutil.MakePack("pack-1")))

	c := store.NewCached(backend, 5*time.Millisecond)
	_, err := c.ListPacks(ctx)
	require.NoError(t, err)

	require.NoError(t, backend.PutPack(ctx, testutil.MakePack("pack-2")))
	time.Sleep(10 * time.Millisecond)

	packs, err := c.ListPacks(ctx)
	require.NoError(t, err)
	assert.Len(t, packs, 2)
}

func TestCachedWritesInvalidate(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	require.NoError(t, backend.PutPack(ctx, testutil.MakePack("pack-1")))

	c := store.NewCached(backend, time.Minute)
	_, err := c.ListPacks(ctx)
	require.NoError(t, err)

	require.NoError(t, c.PutPack(ctx, testutil.MakePack("pack-2")))
	packs, err := c.ListPacks(ctx)
	require.NoError(t, err)
	require.Len(t, packs, 2)

	require.NoError(t, c.PutRule(ctx, testutil.MakeRule("rule-1", "pack-1", "t", "E", "e")))
	rules, err := c.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	require.NoError(t, c.DeleteRule(ctx, "rule-1"))
	rules, err = c.ListRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)

	require.NoError(t, c.DeprecatePack(ctx, "pack-2"))
	packs, err = c.ListPacks(ctx)
	require.NoError(t, err)
	require.Len(t, packs, 2)
	assert.NotEqual(t, packs[1].Status, testutil.MakePack("pack-2").Status)
}

// GetRule bypasses the cache so mid-flight status gates observe edits
// immediately.
func TestCachedGetRuleIsFresh(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	require.NoError(t, backend.PutPack(ctx, testutil.MakePack("pack-1")))
	require.NoError(t, backend.PutRule(ctx, testutil.MakeRule("rule-1", "pack-1", "t", "E", "e")))

	c := store.NewCached(backend, time.Minute)
	_, err := c.ListRules(ctx)
	require.NoError(t, err)

	updated := testutil.MakeRule("rule-1", "pack-1", "t", "E", "e")
	updated.Name = "edited"
	require.NoError(t, backend.PutRule(ctx, updated))

	rule, err := c.GetRule(ctx, "rule-1")
	require.NoError(t, err)
	assert.Equal(t, "edited", rule.Name)
}
