package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_RunsJob(t *testing.T) {
	p := New(2)
	defer p.Shutdown(context.Background())

	done := make(chan struct{})
	p.Submit(func(ctx context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job did not run")
	}
}

func TestSubmit_RunsManyJobsConcurrently(t *testing.T) {
	p := New(4)
	defer p.Shutdown(context.Background())

	var n int64
	const jobs = 50
	doneCh := make(chan struct{}, jobs)
	for i := 0; i < jobs; i++ {
		p.Submit(func(ctx context.Context) {
			atomic.AddInt64(&n, 1)
			doneCh <- struct{}{}
		})
	}
	for i := 0; i < jobs; i++ {
		select {
		case <-doneCh:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}
	assert.EqualValues(t, jobs, atomic.LoadInt64(&n))
}

func TestSubmit_PanicIsRecovered(t *testing.T) {
	p := New(1)
	defer p.Shutdown(context.Background())

	p.Submit(func(ctx context.Context) { panic("boom") })

	done := make(chan struct{})
	p.Submit(func(ctx context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not survive a panicking job")
	}
}

func TestShutdown_WaitsForInFlightJobs(t *testing.T) {
	p := New(1)

	started := make(chan struct{})
	var finished atomic.Bool
	p.Submit(func(ctx context.Context) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	})

	<-started
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.Shutdown(ctx)

	require.True(t, finished.Load())
}
