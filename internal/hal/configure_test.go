package hal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/camhal/internal/testutil"
)

func TestConfigureStreamsRejectsInvalidLists(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		streams func() []*Stream
		want    error
	}{
		{"nil list", func() []*Stream { return nil }, ErrNoStreams},
		{"empty list", func() []*Stream { return []*Stream{} }, ErrNoStreams},
		{"nil stream", func() []*Stream { return []*Stream{previewStream(1), nil} }, ErrInvalidStream},
		{"zero size", func() []*Stream {
			return []*Stream{{ID: 1, Direction: StreamOutput, Format: FormatBlob}}
		}, ErrInvalidStream},
		{"two inputs", func() []*Stream {
			return []*Stream{
				zslStream(1),
				{ID: 2, Direction: StreamInput, Format: FormatYCbCr420888, Width: 640, Height: 480},
			}
		}, ErrMultipleInputStreams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			td := newTestDevice(t, Config{})
			err := td.ConfigureStreams(context.Background(), tt.streams())
			require.ErrorIs(t, err, tt.want)
			assert.Empty(t, td.factory.created)
			assert.Equal(t, "unconfigured", td.Snapshot().State)
		})
	}
}

func TestConfigureStreamsClassifiesPipelines(t *testing.T) {
	t.Parallel()

	preview := previewStream(1)
	video := &Stream{ID: 2, Direction: StreamOutput, Format: FormatImplementationDefined, Width: 1920, Height: 1080, Usage: UsageVideoEncoder}
	callback := &Stream{ID: 3, Direction: StreamOutput, Format: FormatYCbCr420888, Width: 640, Height: 480}
	jpeg := blobStream(4)
	bidi := zslStream(5)
	raw := &Stream{ID: 6, Direction: StreamOutput, Format: FormatRaw16, Width: 4032, Height: 3024}

	td := newTestDevice(t, Config{}, preview, video, callback, jpeg, bidi, raw)

	want := map[*Stream]PipelineKind{
		preview:  PipelinePreview,
		video:    PipelineVideo,
		callback: PipelineCallback,
		jpeg:     PipelineNonZSLSnapshot,
		bidi:     PipelineSnapshot,
		raw:      PipelineRaw,
	}
	for s, kind := range want {
		ch := td.factory.channel(s)
		require.NotNil(t, ch, "no channel for %s", s)
		assert.Equal(t, kind, ch.kind, "pipeline of %s", s)
		assert.Equal(t, uint32(4), s.MaxBuffers)
	}

	snap := td.Snapshot()
	assert.True(t, snap.ZSLMode)
	assert.Equal(t, "active", snap.State)
}

func TestConfigureStreamsInputOnly(t *testing.T) {
	t.Parallel()

	preview := previewStream(1)
	input := &Stream{ID: 2, Direction: StreamInput, Format: FormatYCbCr420888, Width: 640, Height: 480}
	td := newTestDevice(t, Config{}, preview, input)

	assert.Nil(t, td.factory.channel(input), "input streams get no channel")
	assert.False(t, td.Snapshot().ZSLMode)
}

func TestConfigureStreamsIsIdempotent(t *testing.T) {
	t.Parallel()

	preview, jpeg := previewStream(1), blobStream(2)
	td := newTestDevice(t, Config{MaxInFlight: 8}, preview, jpeg)
	ctx := context.Background()

	first := map[*Stream]*fakeChannel{preview: td.factory.channel(preview), jpeg: td.factory.channel(jpeg)}
	submitFrames(t, td, preview, 1, 2)

	require.NoError(t, td.ConfigureStreams(ctx, []*Stream{preview, jpeg}))

	assert.Len(t, td.factory.created, 2, "no channel is recreated for an identical list")
	assert.Same(t, first[preview], td.factory.channel(preview))
	assert.Same(t, first[jpeg], td.factory.channel(jpeg))
	assert.Len(t, td.factory.metadata, 2, "the metadata channel is always fresh")
	assert.Equal(t, 1, first[preview].stopped)

	snap := td.Snapshot()
	assert.Empty(t, snap.Requests)
	assert.Zero(t, snap.PendingBuffers)
	assert.Zero(t, snap.InFlight)

	// First-request state is reset: settings are required again and channels
	// are initialized once more.
	err := td.ProcessCaptureRequest(ctx, request(3, nil, out(preview, 103)))
	require.ErrorIs(t, err, ErrMissingRequestID)
	assert.Equal(t, 2, first[preview].initialized)
	assert.Equal(t, 1, td.factory.currentMetadata().initialized)
}

func TestConfigureStreamsRecreatesChangedStreams(t *testing.T) {
	t.Parallel()

	preview, jpeg := previewStream(1), blobStream(2)
	td := newTestDevice(t, Config{}, preview, jpeg)
	ctx := context.Background()
	oldPreview := td.factory.channel(preview)

	preview.Width, preview.Height = 1280, 720
	require.NoError(t, td.ConfigureStreams(ctx, []*Stream{preview}))

	assert.NotSame(t, oldPreview, td.factory.channel(preview), "a layout change recreates the channel")
	assert.Len(t, td.factory.created, 3)

	snap := td.Snapshot()
	require.Len(t, snap.Streams, 1, "streams missing from the list are swept")
	assert.Equal(t, uint32(1280), snap.Streams[0].Width)
}

func TestConfigureStreamsReclassifiesWhenBlobAppears(t *testing.T) {
	t.Parallel()

	bidi := zslStream(1)
	td := newTestDevice(t, Config{}, bidi)
	assert.Equal(t, PipelinePreview, td.factory.channel(bidi).kind)
	assert.False(t, td.Snapshot().ZSLMode)

	jpeg := blobStream(2)
	require.NoError(t, td.ConfigureStreams(context.Background(), []*Stream{bidi, jpeg}))
	assert.Equal(t, PipelineSnapshot, td.factory.channel(bidi).kind)
	assert.True(t, td.Snapshot().ZSLMode)
}

func TestConfigureStreamsChannelCreateFailure(t *testing.T) {
	t.Parallel()

	preview, jpeg := previewStream(1), blobStream(2)
	td := newTestDevice(t, Config{})
	td.factory.failStream = jpeg

	err := td.ConfigureStreams(context.Background(), []*Stream{preview, jpeg})
	require.ErrorIs(t, err, ErrChannelCreate)

	err = td.ProcessCaptureRequest(context.Background(), request(1, withID(1), out(preview, 10)))
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestConfigureStreamsReleasesBlockedSubmitter(t *testing.T) {
	t.Parallel()

	preview := previewStream(1)
	td := newTestDevice(t, Config{MaxInFlight: 1}, preview)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, td.ProcessCaptureRequest(ctx, request(1, withID(1), out(preview, 10))))
	}()

	select {
	case <-done:
		t.Fatal("submission returned while the in-flight cap was reached")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, td.ConfigureStreams(ctx, []*Stream{preview}))
	testutil.WaitForChannel(t, done, testutil.DefaultTestTimeout, "configure did not release the submitter")
	assert.Zero(t, td.Snapshot().InFlight)
}
