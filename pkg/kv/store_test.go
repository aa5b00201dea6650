// pkg/kv/store_test.go
package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUnknownNamespace(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	value, version, err := store.Get(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Nil(t, value)
	assert.Equal(t, int64(0), version)
}

func TestPutGetRoundTrip(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "userAssets", []byte(`[{"id":1}]`)))

	value, version, err := store.Get(ctx, "userAssets")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":1}]`, string(value))
	assert.Equal(t, int64(1), version)
}

func TestVersionAdvancesPerWrite(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "ns", []byte("a")))
	require.NoError(t, store.Put(ctx, "ns", []byte("b")))
	require.NoError(t, store.Put(ctx, "ns", []byte("c")))

	value, version, err := store.Get(ctx, "ns")
	require.NoError(t, err)
	assert.Equal(t, "c", string(value))
	assert.Equal(t, int64(3), version)
}

func TestUpdateRollsBackOnError(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "ns", []byte("before")))

	boom := errors.New("boom")
	err = store.Update(ctx, func(tx Txn) error {
		require.NoError(t, tx.Put("ns", []byte("after")))
		return boom
	})
	require.ErrorIs(t, err, boom)

	value, version, err := store.Get(ctx, "ns")
	require.NoError(t, err)
	assert.Equal(t, "before", string(value))
	assert.Equal(t, int64(1), version)
}

func TestUpdateWritesTwoNamespacesAtomically(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	err = store.Update(ctx, func(tx Txn) error {
		if err := tx.Put("userAssets", []byte("assets")); err != nil {
			return err
		}
		return tx.Put("userInvestments", []byte("investments"))
	})
	require.NoError(t, err)

	a, _, err := store.Get(ctx, "userAssets")
	require.NoError(t, err)
	b, _, err := store.Get(ctx, "userInvestments")
	require.NoError(t, err)
	assert.Equal(t, "assets", string(a))
	assert.Equal(t, "investments", string(b))
}

func TestCrossProcessVisibility(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := Open(dir)
	require.NoError(t, err)
	defer first.Close()
	second, err := Open(dir)
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, first.Put(ctx, "userAssets", []byte("from-first")))

	value, version, err := second.Get(ctx, "userAssets")
	require.NoError(t, err)
	assert.Equal(t, "from-first", string(value))
	assert.Equal(t, int64(1), version)
}

func TestWatchSeesWriteFromOtherInstance(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcherStore, err := Open(dir)
	require.NoError(t, err)
	defer watcherStore.Close()
	writerStore, err := Open(dir)
	require.NoError(t, err)
	defer writerStore.Close()

	events := watcherStore.Watch(ctx, []string{"userAssets"}, map[string]int64{}, 20*time.Millisecond)

	require.NoError(t, writerStore.Put(ctx, "userAssets", []byte("hello")))

	select {
	case ev := <-events:
		assert.Equal(t, "userAssets", ev.Namespace)
		assert.Equal(t, int64(1), ev.Version)
		assert.Equal(t, "hello", string(ev.Value))
	case <-time.After(2 * time.Second):
		t.Fatal("expected a watch event within one poll interval")
	}
}

func TestWatchClosesOnCancel(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	events := store.Watch(ctx, []string{"ns"}, map[string]int64{}, 10*time.Millisecond)
	cancel()

	select {
	case _, open := <-events:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("expected the event channel to close")
	}
}
