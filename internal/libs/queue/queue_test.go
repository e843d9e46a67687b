package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPopReturnsPushOrder(t *testing.T) {
	q := New[int]()
	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	require.Equal(t, 5, q.Len())

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		v, err := q.Pop(ctx)
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
	require.Zero(t, q.Len())
}

func TestPopBlocksUntilPush(t *testing.T) {
	defer leaktest.Check(t)()

	q := New[string]()
	got := make(chan string)
	go func() {
		v, err := q.Pop(context.Background())
		if err == nil {
			got <- v
		}
	}()

	select {
	case <-got:
		t.Fatal("pop returned from an empty queue")
	case <-time.After(50 * time.Millisecond):
	}

	q.Push("hello")
	select {
	case v := <-got:
		require.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("pop did not wake up")
	}
}

func TestPopHonorsContext(t *testing.T) {
	defer leaktest.Check(t)()

	q := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTryPopEmpty(t *testing.T) {
	q := New[int]()
	_, ok := q.TryPop()
	require.False(t, ok)
}

func TestManyConsumersReceiveEachItemOnce(t *testing.T) {
	defer leaktest.Check(t)()

	const (
		consumers = 4
		items     = 1000
	)

	q := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mtx  sync.Mutex
		seen = make(map[int]int)
		wg   sync.WaitGroup
	)
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, err := q.Pop(ctx)
				if err != nil {
					return
				}
				mtx.Lock()
				seen[v]++
				done := len(seen) == items
				mtx.Unlock()
				if done {
					cancel()
				}
			}
		}()
	}

	for i := 0; i < items; i++ {
		q.Push(i)
	}
	wg.Wait()

	require.Len(t, seen, items)
	for v, n := range seen {
		require.Equal(t, 1, n, "item %d", v)
	}
}

// Items pushed by a single producer are popped in the order they were pushed,
// however the producers interleave.
func TestPerProducerOrderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		producers := rapid.IntRange(1, 4).Draw(t, "producers").(int)
		perProducer := rapid.IntRange(0, 50).Draw(t, "perProducer").(int)

		type item struct{ producer, seq int }
		q := New[item]()

		var wg sync.WaitGroup
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				for s := 0; s < perProducer; s++ {
					q.Push(item{producer: p, seq: s})
				}
			}(p)
		}
		wg.Wait()

		if q.Len() != producers*perProducer {
			t.Fatalf("len %d, want %d", q.Len(), producers*perProducer)
		}

		next := make([]int, producers)
		for {
			it, ok := q.TryPop()
			if !ok {
				break
			}
			if it.seq != next[it.producer] {
				t.Fatalf("producer %d: got seq %d, want %d", it.producer, it.seq, next[it.producer])
			}
			next[it.producer]++
		}
	})
}

// Sequential pushes and pops behave like a slice-backed FIFO.
func TestModelProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		q := New[int]()
		var model []int

		ops := rapid.SliceOf(rapid.IntRange(-1, 100)).Draw(t, "ops").([]int)
		for _, op := range ops {
			if op < 0 {
				v, ok := q.TryPop()
				if len(model) == 0 {
					if ok {
						t.Fatalf("popped %d from empty queue", v)
					}
					continue
				}
				if !ok || v != model[0] {
					t.Fatalf("got (%d, %v), want %d", v, ok, model[0])
				}
				model = model[1:]
				continue
			}
			q.Push(op)
			model = append(model, op)
		}

		if q.Len() != len(model) {
			t.Fatalf("len %d, want %d", q.Len(), len(model))
		}
	})
}
