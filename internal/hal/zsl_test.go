package hal

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newZSLDevice(t *testing.T, cfg Config) (td *testDevice, bidi, jpeg *Stream) {
	t.Helper()
	bidi, jpeg = zslStream(1), blobStream(2)
	if cfg.MaxInFlight == 0 {
		cfg.MaxInFlight = 8
	}
	td = newTestDevice(t, cfg, bidi, jpeg)
	require.True(t, td.Snapshot().ZSLMode)
	return td, bidi, jpeg
}

func TestZSLStoresFrameInEitherArrivalOrder(t *testing.T) {
	t.Parallel()

	orders := map[string]func(td *testDevice, bidi *Stream, token MetadataCompletion){
		"metadata first": func(td *testDevice, bidi *Stream, token MetadataCompletion) {
			td.OnCompletion(token)
			td.OnCompletion(bufferFor(bidi, 10, 1))
		},
		"buffer first": func(td *testDevice, bidi *Stream, token MetadataCompletion) {
			td.OnCompletion(bufferFor(bidi, 10, 1))
			td.OnCompletion(token)
		},
	}

	for name, deliver := range orders {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			td, bidi, jpeg := newZSLDevice(t, Config{})
			ctx := context.Background()

			require.NoError(t, td.ProcessCaptureRequest(ctx, request(1, withID(1), out(bidi, 10))))
			token := metadataFor(1, 100)
			deliver(td, bidi, token)

			require.Equal(t, 1, td.Snapshot().ZSLStored)
			stored := td.zsl.find(1)
			require.NotNil(t, stored)
			assert.True(t, stored.complete())
			assert.Zero(t, td.Snapshot().PendingBuffers)

			var buffers int
			for _, r := range td.sink.resultsFor(1) {
				buffers += len(r.Buffers)
			}
			assert.Equal(t, 1, buffers, "the bidirectional buffer is returned exactly once")

			reprocess := request(2, withID(2), out(jpeg, 20))
			reprocess.InputBuffer = &StreamBuffer{Stream: bidi, Buffer: 10}
			require.NoError(t, td.ProcessCaptureRequest(ctx, reprocess))

			jc := td.factory.channel(jpeg)
			require.Len(t, jc.reprocess, 1)
			assert.Same(t, token.Token, jc.reprocess[0])
			assert.Zero(t, td.Snapshot().ZSLStored)
			assert.Zero(t, td.factory.currentMetadata().releasedCount())

			require.Len(t, jc.requests, 1)
			assert.Equal(t, BufferHandle(10), jc.requests[0].Input.Buffer)
			assert.Same(t, bidi, jc.requests[0].InputStream)
		})
	}
}

func TestZSLReprocessMetadataIsNotStored(t *testing.T) {
	t.Parallel()

	td, bidi, jpeg := newZSLDevice(t, Config{})
	reprocess := request(1, withID(1), out(jpeg, 20))
	reprocess.InputBuffer = &StreamBuffer{Stream: bidi, Buffer: 10}
	require.NoError(t, td.ProcessCaptureRequest(context.Background(), reprocess))

	td.OnCompletion(metadataFor(1, 100))

	assert.Zero(t, td.Snapshot().ZSLStored)
	assert.Empty(t, td.factory.channel(jpeg).metadata)
	assert.Equal(t, 1, td.factory.currentMetadata().releasedCount())
}

func TestZSLBlobWithoutInputQueuesMetadata(t *testing.T) {
	t.Parallel()

	td, _, jpeg := newZSLDevice(t, Config{})
	require.NoError(t, td.ProcessCaptureRequest(context.Background(), request(1, withID(1), out(jpeg, 20))))

	token := metadataFor(1, 100)
	td.OnCompletion(token)

	jc := td.factory.channel(jpeg)
	require.Len(t, jc.metadata, 1)
	assert.Same(t, token.Token, jc.metadata[0])
}

func TestZSLEvictsOldestAtCapacity(t *testing.T) {
	t.Parallel()

	td, bidi, _ := newZSLDevice(t, Config{ZSLMaxStored: 2})
	ctx := context.Background()

	var tokens []MetadataCompletion
	for f := uint32(1); f <= 3; f++ {
		settings := Settings(nil)
		if f == 1 {
			settings = withID(1)
		}
		require.NoError(t, td.ProcessCaptureRequest(ctx, request(f, settings, out(bidi, BufferHandle(10+f)))))
		tok := metadataFor(f, int64(f)*100)
		tokens = append(tokens, tok)
		td.OnCompletion(tok)
	}

	assert.Equal(t, 2, td.Snapshot().ZSLStored)
	assert.Nil(t, td.zsl.find(1))
	meta := td.factory.currentMetadata()
	require.Equal(t, 1, meta.releasedCount())
	assert.Same(t, tokens[0].Token, meta.released[0])
}

func TestZSLRecycledBufferReleasesStaleFrame(t *testing.T) {
	t.Parallel()

	td, bidi, _ := newZSLDevice(t, Config{})
	ctx := context.Background()

	require.NoError(t, td.ProcessCaptureRequest(ctx, request(1, withID(1), out(bidi, 10))))
	token := metadataFor(1, 100)
	td.OnCompletion(bufferFor(bidi, 10, 1))
	td.OnCompletion(token)
	require.Equal(t, 1, td.Snapshot().ZSLStored)

	// The framework hands the same buffer back for a new capture
	require.NoError(t, td.ProcessCaptureRequest(ctx, request(2, nil, out(bidi, 10))))

	assert.Zero(t, td.Snapshot().ZSLStored)
	meta := td.factory.currentMetadata()
	require.Equal(t, 1, meta.releasedCount())
	assert.Same(t, token.Token, meta.released[0])
}

func TestZSLStoreReplacesDuplicateToken(t *testing.T) {
	t.Parallel()

	z := newZSLStore(4)
	first, second := &MetadataBuffer{FrameNumber: 1}, &MetadataBuffer{FrameNumber: 1}

	replaced, evicted := z.storeToken(1, first)
	assert.Nil(t, replaced)
	assert.Nil(t, evicted)

	replaced, _ = z.storeToken(1, second)
	assert.Same(t, first, replaced)
	assert.Equal(t, 1, z.len())

	assert.Nil(t, z.storeHandle(1, 77))
	assert.Nil(t, z.takeReprocess(78))
	got := z.takeReprocess(77)
	require.NotNil(t, got)
	assert.Same(t, second, got.token)
	assert.Zero(t, z.len())
}

func TestZSLStoreTakeReprocessNeedsToken(t *testing.T) {
	t.Parallel()

	z := newZSLStore(0)
	assert.Equal(t, DefaultZSLMaxStored, z.max)

	z.storeHandle(3, 30)
	assert.Nil(t, z.takeReprocess(30), "buffer without metadata cannot be reprocessed")
	assert.NotNil(t, z.takeByHandle(30))

	z.storeToken(4, &MetadataBuffer{})
	z.storeToken(5, &MetadataBuffer{})
	z.storeHandle(6, 60)
	assert.Len(t, z.drain(), 2)
	assert.Zero(t, z.len())
}

func TestZSLFailedReprocessKeepsStoredFrame(t *testing.T) {
	t.Parallel()

	td, bidi, jpeg := newZSLDevice(t, Config{})
	ctx := context.Background()

	require.NoError(t, td.ProcessCaptureRequest(ctx, request(1, withID(1), out(bidi, 10))))
	token := metadataFor(1, 100)
	td.OnCompletion(bufferFor(bidi, 10, 1))
	td.OnCompletion(token)
	require.Equal(t, 1, td.Snapshot().ZSLStored)

	jc := td.factory.channel(jpeg)
	jc.requestErr = stderrors.New("encoder queue full")

	reprocess := request(2, nil, out(jpeg, 20))
	reprocess.InputBuffer = &StreamBuffer{Stream: bidi, Buffer: 10}
	require.ErrorIs(t, td.ProcessCaptureRequest(ctx, reprocess), ErrDispatchFailed)

	assert.Equal(t, 1, td.Snapshot().ZSLStored, "a rejected reprocess leaves the frame stored")
	assert.Empty(t, jc.reprocess)
	assert.Zero(t, td.factory.currentMetadata().releasedCount())

	jc.requestErr = nil
	retry := request(3, nil, out(jpeg, 21))
	retry.InputBuffer = &StreamBuffer{Stream: bidi, Buffer: 10}
	require.NoError(t, td.ProcessCaptureRequest(ctx, retry))

	require.Len(t, jc.reprocess, 1)
	assert.Same(t, token.Token, jc.reprocess[0])
	assert.Zero(t, td.Snapshot().ZSLStored)
}
