package tiered

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gocredits/pkg/gocredits"
	"github.com/mihaimyh/gocredits/storage/memory"
)

// countingStore counts calls and can be made to fail
type countingStore struct {
	*memory.Storage
	contains atomic.Int32
	marks    atomic.Int32
	err      error
}

func newCountingStore() *countingStore {
	return &countingStore{Storage: memory.New()}
}

func (c *countingStore) Contains(ctx context.Context, id string) (bool, error) {
	c.contains.Add(1)
	if c.err != nil {
		return false, c.err
	}
	return c.Storage.Contains(ctx, id)
}

func (c *countingStore) MarkProcessed(ctx context.Context, id string) (bool, error) {
	c.marks.Add(1)
	if c.err != nil {
		return false, c.err
	}
	return c.Storage.MarkProcessed(ctx, id)
}

func TestNew(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		storage, err := New(Config{Hot: memory.New(), Cold: memory.New()})
		assert.NoError(t, err)
		assert.NotNil(t, storage)
		assert.NoError(t, storage.Close())
	})

	t.Run("nil hot storage", func(t *testing.T) {
		storage, err := New(Config{Cold: memory.New()})
		assert.Error(t, err)
		assert.Nil(t, storage)
		assert.Contains(t, err.Error(), "hot and cold storage are required")
	})

	t.Run("nil cold storage", func(t *testing.T) {
		storage, err := New(Config{Hot: memory.New()})
		assert.Error(t, err)
		assert.Nil(t, storage)
	})

	t.Run("default sync buffer size", func(t *testing.T) {
		storage, err := New(Config{Hot: memory.New(), Cold: memory.New(), AsyncHotFill: true})
		require.NoError(t, err)
		defer storage.Close()
		assert.Equal(t, 1000, cap(storage.syncQueue))
	})

	t.Run("double close", func(t *testing.T) {
		storage, err := New(Config{Hot: memory.New(), Cold: memory.New(), AsyncHotFill: true})
		require.NoError(t, err)
		assert.NoError(t, storage.Close())
		assert.NoError(t, storage.Close())
	})
}

func TestMarkProcessed_ColdDecides(t *testing.T) {
	hot := newCountingStore()
	cold := newCountingStore()
	storage, err := New(Config{Hot: hot, Cold: cold})
	require.NoError(t, err)
	ctx := context.Background()

	// Hot already has the id (e.g. another instance's cache) but Cold does not
	_, err = hot.Storage.MarkProcessed(ctx, "cs_1")
	require.NoError(t, err)

	inserted, err := storage.MarkProcessed(ctx, "cs_1")
	require.NoError(t, err)
	assert.True(t, inserted, "cold is authoritative")

	inserted, err = storage.MarkProcessed(ctx, "cs_1")
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestMarkProcessed_ColdErrorFailsClosed(t *testing.T) {
	hot := newCountingStore()
	cold := newCountingStore()
	cold.err = errors.New("connection refused")
	storage, err := New(Config{Hot: hot, Cold: cold})
	require.NoError(t, err)

	inserted, err := storage.MarkProcessed(context.Background(), "cs_1")
	assert.ErrorContains(t, err, "connection refused")
	assert.False(t, inserted)
	assert.Equal(t, int32(0), hot.marks.Load(), "hot is not filled when cold fails")
}

func TestContains_HotHitSkipsCold(t *testing.T) {
	hot := newCountingStore()
	cold := newCountingStore()
	storage, err := New(Config{Hot: hot, Cold: cold})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = storage.MarkProcessed(ctx, "cs_1")
	require.NoError(t, err)

	seen, err := storage.Contains(ctx, "cs_1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, int32(0), cold.contains.Load())
}

func TestContains_ReadRepair(t *testing.T) {
	hot := newCountingStore()
	cold := newCountingStore()
	storage, err := New(Config{Hot: hot, Cold: cold})
	require.NoError(t, err)
	ctx := context.Background()

	// Written by another instance straight to Cold
	_, err = cold.Storage.MarkProcessed(ctx, "cs_other")
	require.NoError(t, err)

	seen, err := storage.Contains(ctx, "cs_other")
	require.NoError(t, err)
	assert.True(t, seen)

	inHot, err := hot.Storage.Contains(ctx, "cs_other")
	require.NoError(t, err)
	assert.True(t, inHot)

	seen, err = storage.Contains(ctx, "cs_missing")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Equal(t, 1, hot.Len(), "misses are not cached")
}

func TestContains_HotErrorFallsThrough(t *testing.T) {
	hot := newCountingStore()
	hot.err = errors.New("redis down")
	cold := newCountingStore()
	var reported atomic.Int32
	storage, err := New(Config{
		Hot:               hot,
		Cold:              cold,
		AsyncErrorHandler: func(error) { reported.Add(1) },
	})
	require.NoError(t, err)
	ctx := context.Background()

	inserted, err := storage.MarkProcessed(ctx, "cs_1")
	require.NoError(t, err)
	assert.True(t, inserted)

	seen, err := storage.Contains(ctx, "cs_1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, int32(2), reported.Load(), "both hot fills reported")
}

func TestContains_ColdError(t *testing.T) {
	cold := newCountingStore()
	cold.err = errors.New("timeout")
	storage, err := New(Config{Hot: newCountingStore(), Cold: cold})
	require.NoError(t, err)

	_, err = storage.Contains(context.Background(), "cs_1")
	assert.ErrorContains(t, err, "timeout")
}

func TestAsyncHotFill(t *testing.T) {
	hot := newCountingStore()
	cold := newCountingStore()
	storage, err := New(Config{Hot: hot, Cold: cold, AsyncHotFill: true})
	require.NoError(t, err)
	defer storage.Close()

	inserted, err := storage.MarkProcessed(context.Background(), "cs_async")
	require.NoError(t, err)
	assert.True(t, inserted)

	assert.Eventually(t, func() bool {
		ok, _ := hot.Storage.Contains(context.Background(), "cs_async")
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestAsyncHotFill_QueueFull(t *testing.T) {
	block := make(chan struct{})
	hot := &blockingStore{Storage: memory.New(), block: block}
	var dropped atomic.Int32
	storage, err := New(Config{
		Hot:            hot,
		Cold:           memory.New(),
		AsyncHotFill:   true,
		SyncBufferSize: 1,
		AsyncErrorHandler: func(err error) {
			if err != nil {
				dropped.Add(1)
			}
		},
	})
	require.NoError(t, err)

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := storage.MarkProcessed(ctx, id)
		require.NoError(t, err)
	}

	close(block)
	require.NoError(t, storage.Close())
	assert.GreaterOrEqual(t, dropped.Load(), int32(2))
}

// blockingStore blocks MarkProcessed until block is closed
type blockingStore struct {
	*memory.Storage
	block chan struct{}
}

func (b *blockingStore) MarkProcessed(ctx context.Context, id string) (bool, error) {
	<-b.block
	return b.Storage.MarkProcessed(ctx, id)
}

func TestWithProcessor_ConcurrentDeliveries(t *testing.T) {
	storage, err := New(Config{Hot: memory.New(), Cold: memory.New()})
	require.NoError(t, err)
	ledger := memory.NewLedger()

	processor, err := gocredits.NewProcessor(storage, gocredits.Config{Ledger: ledger})
	require.NoError(t, err)

	session := &gocredits.CheckoutSession{
		ID:            "cs_tiered",
		Metadata:      map[string]string{gocredits.MetadataUserID: "u1", gocredits.MetadataTierID: "explorer"},
		Status:        gocredits.SessionStatusComplete,
		PaymentStatus: gocredits.PaymentStatusPaid,
		AmountTotal:   499,
		Currency:      "usd",
	}

	var wg sync.WaitGroup
	var granted atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := processor.Process(context.Background(), session); err == nil {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), granted.Load())
	balance, err := ledger.Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000), balance)
}
