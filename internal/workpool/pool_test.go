package workpool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	assert.Equal(t, DefaultWorkers, New(0).Workers())
	assert.Equal(t, DefaultWorkers, New(-3).Workers())
	assert.Equal(t, 2, New(2).Workers())
}

func TestMapKeepsInputOrder(t *testing.T) {
	items := []int{5, 1, 4, 2, 3}

	results := Map(context.Background(), New(3), items, func(_ context.Context, n int) (string, error) {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return fmt.Sprintf("item-%d", n), nil
	})

	require.Len(t, results, len(items))

	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.NoError(t, r.Err)
		assert.Equal(t, fmt.Sprintf("item-%d", items[i]), r.Data)
	}
}

func TestMapBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32

	items := make([]int, 20)

	Map(context.Background(), New(2), items, func(_ context.Context, _ int) (struct{}, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}

		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)

		return struct{}{}, nil
	})

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestMapPerItemErrors(t *testing.T) {
	boom := errors.New("boom")

	results := Map(context.Background(), New(2), []string{"ok", "bad", "ok"}, func(_ context.Context, s string) (int, error) {
		if s == "bad" {
			return 0, boom
		}

		return len(s), nil
	})

	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.Equal(t, 2, results[2].Data)
}

func TestMapCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := Map(ctx, New(1), []int{1, 2, 3}, func(ctx context.Context, n int) (int, error) {
		return n, ctx.Err()
	})

	require.Len(t, results, 3)

	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestMapEmpty(t *testing.T) {
	results := Map(context.Background(), New(2), nil, func(_ context.Context, n int) (int, error) {
		return n, nil
	})

	assert.Empty(t, results)
}
