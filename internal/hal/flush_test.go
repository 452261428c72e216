package hal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/camhal/internal/testutil"
)

func TestFlushPartitionsByShutter(t *testing.T) {
	t.Parallel()

	preview := previewStream(1)
	td := newTestDevice(t, Config{MaxInFlight: 8}, preview)
	submitFrames(t, td, preview, 5, 6, 7)

	// Frame 5 gets its shutter; its buffer is still in the channel
	td.OnCompletion(metadataFor(5, 500))
	require.Equal(t, 1, len(td.sink.shutterList()))

	require.NoError(t, td.Flush(context.Background()))

	require.Len(t, td.sink.errors, 3)
	assert.Equal(t, errorEvent{5, ErrorBuffer, preview}, td.sink.errors[0])
	assert.Equal(t, errorEvent{6, ErrorRequest, nil}, td.sink.errors[1])
	assert.Equal(t, errorEvent{7, ErrorRequest, nil}, td.sink.errors[2])

	for _, f := range []uint32{5, 6, 7} {
		results := td.sink.resultsFor(f)
		last := results[len(results)-1]
		assert.Nil(t, last.Metadata)
		require.Len(t, last.Buffers, 1)
		assert.Equal(t, BufferStatusError, last.Buffers[0].Status)
		assert.Equal(t, BufferHandle(100+f), last.Buffers[0].Buffer)
	}

	assert.Equal(t, []string{
		"shutter:5", "result:5",
		"error:5:buffer", "result:5",
		"error:6:request", "result:6",
		"error:7:request", "result:7",
	}, td.sink.order)

	snap := td.Snapshot()
	assert.Empty(t, snap.Requests)
	assert.Zero(t, snap.PendingBuffers)
	assert.Zero(t, snap.InFlight)
	assert.Equal(t, "active", snap.State)

	pc := td.factory.channel(preview)
	assert.Equal(t, 1, pc.stopped)
	assert.Equal(t, 1, td.factory.currentMetadata().stopped)
}

func TestFlushWithEmptyLedgerReportsBufferErrors(t *testing.T) {
	t.Parallel()

	preview := previewStream(1)
	td := newTestDevice(t, Config{MaxInFlight: 8}, preview)
	submitFrames(t, td, preview, 1, 2)
	td.OnCompletion(metadataFor(2, 200))

	require.NoError(t, td.Flush(context.Background()))

	require.Len(t, td.sink.errors, 2)
	for _, e := range td.sink.errors {
		assert.Equal(t, ErrorBuffer, e.code)
	}
}

func TestFlushReturnsStoredMetadata(t *testing.T) {
	t.Parallel()

	bidi, jpeg := zslStream(1), blobStream(2)
	td := newTestDevice(t, Config{MaxInFlight: 8}, bidi, jpeg)
	require.True(t, td.Snapshot().ZSLMode)

	require.NoError(t, td.ProcessCaptureRequest(context.Background(), request(1, withID(1), out(bidi, 10))))
	token := metadataFor(1, 100)
	td.OnCompletion(token)
	require.Equal(t, 1, td.Snapshot().ZSLStored)

	require.NoError(t, td.Flush(context.Background()))

	assert.Zero(t, td.Snapshot().ZSLStored)
	meta := td.factory.currentMetadata()
	require.Equal(t, 1, meta.releasedCount())
	assert.Same(t, token.Token, meta.released[0])
}

func TestFlushResetsFirstRequest(t *testing.T) {
	t.Parallel()

	preview := previewStream(1)
	td := newTestDevice(t, Config{MaxInFlight: 8}, preview)
	ctx := context.Background()
	submitFrames(t, td, preview, 1)

	require.NoError(t, td.Flush(ctx))

	err := td.ProcessCaptureRequest(ctx, request(2, nil, out(preview, 101)))
	require.ErrorIs(t, err, ErrMissingRequestID)

	require.NoError(t, td.ProcessCaptureRequest(ctx, request(2, withID(2), out(preview, 101))))
	pc := td.factory.channel(preview)
	assert.Equal(t, 2, pc.initialized, "channels are initialized again after flush")
	assert.Equal(t, []BufferHandle{101, 101}, pc.registered, "registrations are cleared by flush")
}

func TestFlushReleasesBlockedSubmitter(t *testing.T) {
	t.Parallel()

	preview := previewStream(1)
	td := newTestDevice(t, Config{MaxInFlight: 1}, preview)

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, td.ProcessCaptureRequest(context.Background(), request(1, withID(1), out(preview, 10))))
	}()

	select {
	case <-done:
		t.Fatal("submission returned while the in-flight cap was reached")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, td.Flush(context.Background()))
	testutil.WaitForChannel(t, done, testutil.DefaultTestTimeout, "flush did not release the submitter")

	assert.Equal(t, []string{"error:1:request", "result:1"}, td.sink.order)
}

func TestFlushUnconfiguredIsNoop(t *testing.T) {
	t.Parallel()

	td := newTestDevice(t, Config{})
	require.NoError(t, td.Flush(context.Background()))
	assert.Empty(t, td.sink.order)
}
