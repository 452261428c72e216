package hal

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/camhal/internal/testutil"
)

// startCompleter answers every dispatched frame from a separate goroutine,
// the way channel workers do.
func startCompleter(t *testing.T, td *testDevice) {
	t.Helper()
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case frame := <-td.factory.metaFrames:
				td.OnCompletion(metadataFor(frame, int64(frame)*1_000))
			case req := <-td.factory.dispatched:
				td.OnCompletion(BufferCompletion{Buffer: req.Buffer, FrameNumber: req.FrameNumber})
			case <-done:
				return
			}
		}
	}()
	t.Cleanup(func() {
		close(done)
		wg.Wait()
	})
}

func TestConcurrentSubmitAndComplete(t *testing.T) {
	t.Parallel()

	const frames = 50
	preview := previewStream(1)
	td := newTestDevice(t, Config{MaxInFlight: 2})
	td.factory.dispatched = make(chan ChannelRequest, frames)
	td.factory.metaFrames = make(chan uint32, frames)
	require.NoError(t, td.ConfigureStreams(context.Background(), []*Stream{preview}))
	startCompleter(t, td)

	for f := uint32(1); f <= frames; f++ {
		settings := Settings(nil)
		if f == 1 {
			settings = withID(1)
		}
		require.NoError(t, td.ProcessCaptureRequest(context.Background(),
			request(f, settings, out(preview, BufferHandle(1000+f)))))
		assert.LessOrEqual(t, td.Snapshot().InFlight, 2)
	}

	require.Eventually(t, func() bool {
		s := td.Snapshot()
		return len(s.Requests) == 0 && s.PendingBuffers == 0
	}, testutil.DefaultTestTimeout, testutil.PollInterval)

	shutters := td.sink.shutterList()
	require.Len(t, shutters, frames)
	for i, s := range shutters {
		assert.Equal(t, uint32(i+1), s.frame)
	}

	returned := make(map[BufferHandle]int)
	td.sink.mu.Lock()
	for _, r := range td.sink.results {
		for _, b := range r.Buffers {
			returned[b.Buffer]++
		}
	}
	td.sink.mu.Unlock()
	assert.Len(t, returned, frames)
	for h, n := range returned {
		assert.Equal(t, 1, n, "buffer %d returned more than once", h)
	}
}
