package signal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_WakesAllWaiters(t *testing.T) {
	g := NewGate()
	assert.False(t, g.IsOpen())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, g.Wait(context.Background()))
		}()
	}
	g.Open()
	g.Open()
	wg.Wait()
	assert.True(t, g.IsOpen())
}

func TestGate_WaitCancelled(t *testing.T) {
	g := NewGate()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)
}

func TestGate_AlreadyOpen(t *testing.T) {
	g := NewOpenGate()
	select {
	case <-g.Done():
	default:
		t.Fatal("gate should be open")
	}
}

func TestValue_WatchSeedsCurrent(t *testing.T) {
	v := NewValue(false)
	ch, cancel := v.Watch()
	defer cancel()

	assert.False(t, <-ch)
	assert.True(t, v.Set(true))
	assert.True(t, <-ch)
	assert.False(t, v.Set(true))
}

func TestValue_SlowObserverSeesLatest(t *testing.T) {
	v := NewValue(0)
	ch, cancel := v.Watch()
	defer cancel()

	for i := 1; i <= 5; i++ {
		v.Set(i)
	}
	assert.Equal(t, 5, <-ch)
	select {
	case got := <-ch:
		t.Fatalf("unexpected extra value %d", got)
	default:
	}
}

func TestValue_CancelAndClose(t *testing.T) {
	v := NewValue("a")
	ch, cancel := v.Watch()
	<-ch
	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)

	ch2, _ := v.Watch()
	<-ch2
	v.Close()
	_, ok = <-ch2
	assert.False(t, ok)

	ch3, _ := v.Watch()
	_, ok = <-ch3
	require.False(t, ok)
	assert.False(t, v.Set("b"))
}
