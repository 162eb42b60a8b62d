package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/matomart-api/internal/pricing"
)

func TestStoreMutatePersistsAndNotifies(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	var changes []Change
	unsubscribe := store.Subscribe(func(c Change) { changes = append(changes, c) })

	lines, err := store.Mutate(ctx, "c1", func(lines []pricing.Line) ([]pricing.Line, error) {
		return append(lines, pricing.Line{ProductID: "p1", Qty: 2}), nil
	})
	require.NoError(t, err)
	require.Equal(t, []pricing.Line{{ProductID: "p1", Qty: 2}}, lines)
	require.Len(t, changes, 1)
	require.Equal(t, "c1", changes[0].CartID)
	require.False(t, changes[0].At.IsZero())

	stored, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, lines, stored)

	_, err = store.Mutate(ctx, "c1", func(lines []pricing.Line) ([]pricing.Line, error) {
		return lines, nil
	})
	require.NoError(t, err)
	require.Len(t, changes, 1, "unchanged carts do not notify")

	unsubscribe()
	unsubscribe()
	_, err = store.Mutate(ctx, "c1", func([]pricing.Line) ([]pricing.Line, error) { return nil, nil })
	require.NoError(t, err)
	require.Len(t, changes, 1)
}

func TestStoreMutateErrorKeepsState(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	_, err := store.Mutate(ctx, "c1", func(lines []pricing.Line) ([]pricing.Line, error) {
		return append(lines, pricing.Line{ProductID: "p1", Qty: 1}), nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	lines, err := store.Mutate(ctx, "c1", func(lines []pricing.Line) ([]pricing.Line, error) {
		lines[0].Qty = 99
		return lines, boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1.0, lines[0].Qty)

	stored, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 1.0, stored[0].Qty)
}

func TestStoreDropsInvalidLines(t *testing.T) {
	store := newTestStore()
	lines, err := store.Mutate(context.Background(), "c1", func([]pricing.Line) ([]pricing.Line, error) {
		return []pricing.Line{
			{ProductID: "p1", Qty: 1},
			{ProductID: "p1", Qty: 4},
			{ProductID: " ", Qty: 1},
			{ProductID: "p2", Qty: 0},
			{ProductID: "p3", Qty: -1},
		}, nil
	})
	require.NoError(t, err)
	require.Equal(t, []pricing.Line{{ProductID: "p1", Qty: 1}}, lines)
}

func TestStoreCorruptPayloadLoadsEmpty(t *testing.T) {
	kv := NewMemoryKV()
	store := NewStore(kv, StoreOptions{Prefix: "matomart_cart"})
	ctx := context.Background()
	require.NoError(t, kv.Save(ctx, store.Key("c1"), []byte(`{not json`), 0))

	lines, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestStoreKeepsVariantID(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	variant := "v-1"
	_, err := store.Mutate(ctx, "c1", func(lines []pricing.Line) ([]pricing.Line, error) {
		return append(lines, pricing.Line{ProductID: "p1", VariantID: &variant, Qty: 1}), nil
	})
	require.NoError(t, err)

	stored, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, stored[0].VariantID)
	require.Equal(t, "v-1", *stored[0].VariantID)
	require.Equal(t, "matomart_cart:c1", store.Key("c1"))
}

func TestStoreEmptyCartIsDeleted(t *testing.T) {
	kv := NewMemoryKV()
	store := NewStore(kv, StoreOptions{})
	ctx := context.Background()
	_, err := store.Mutate(ctx, "c1", func(lines []pricing.Line) ([]pricing.Line, error) {
		return append(lines, pricing.Line{ProductID: "p1", Qty: 1}), nil
	})
	require.NoError(t, err)
	_, err = store.Mutate(ctx, "c1", func([]pricing.Line) ([]pricing.Line, error) { return nil, nil })
	require.NoError(t, err)

	_, ok, err := kv.Load(ctx, store.Key("c1"))
	require.NoError(t, err)
	require.False(t, ok)
}
