package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerPool(t *testing.T) {
	t.Run("Get and Put", func(t *testing.T) {
		timer1 := GetTimer(1 * time.Second)
		assert.NotNil(t, timer1)

		PutTimer(timer1)

		timer2 := GetTimer(20 * time.Millisecond)
		assert.NotNil(t, timer2)

		<-timer2.C // reused timers must still fire
	})

	t.Run("Put Active Timer", func(t *testing.T) {
		timer1 := GetTimer(10 * time.Millisecond)
		time.Sleep(30 * time.Millisecond) // let it fire without consuming
		PutTimer(timer1)

		timer2 := GetTimer(50 * time.Millisecond)
		select {
		case <-timer2.C:
			// fired after the full reset duration; the stale fire was drained
		case <-time.After(time.Second):
			t.Error("reused timer never fired")
		}
	})
}

func TestWait(t *testing.T) {
	t.Run("full duration", func(t *testing.T) {
		start := time.Now()
		err := Wait(context.Background(), 30*time.Millisecond)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		start := time.Now()
		err := Wait(ctx, 5*time.Second)
		require.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("non-positive duration", func(t *testing.T) {
		require.NoError(t, Wait(context.Background(), 0))
	})
}
