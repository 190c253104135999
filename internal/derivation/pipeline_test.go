package derivation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/previewflow/internal/media"
	"github.com/your-org/previewflow/pkg/storage/objectstore"
)

type fakeStore struct {
	mu      sync.Mutex
	uploads map[string]string // key -> contentType
	order   []string
	failKey string
}

func newFakeStore() *fakeStore {
	return &fakeStore{uploads: make(map[string]string)}
}

func (f *fakeStore) PresignedGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://storage.test/%s/%s?signature=abc", bucket, key), nil
}

func (f *fakeStore) Upload(ctx context.Context, localPath, bucket, key, contentType string) (objectstore.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failKey != "" && key == f.failKey {
		return objectstore.Location{}, &objectstore.UploadError{Bucket: bucket, Key: key, Err: fmt.Errorf("backend unavailable")}
	}
	f.uploads[key] = contentType
	f.order = append(f.order, key)
	return objectstore.Location{Bucket: bucket, Key: key}, nil
}

func (f *fakeStore) Close() error { return nil }

type fakeProber struct {
	originalSize   int64
	compressedSize int64
	duration       float64
	err            error
}

func (f *fakeProber) Probe(ctx context.Context, source string) (media.Descriptor, error) {
	if f.err != nil {
		return media.Descriptor{}, f.err
	}
	d := media.Descriptor{DurationSeconds: f.duration, Extension: "mp4"}
	if strings.HasPrefix(source, "https://") {
		d.SizeBytes = f.originalSize
	} else {
		d.SizeBytes = f.compressedSize
	}
	return d, nil
}

type fakeTranscoder struct {
	dir   string
	paths []string
	err   error
}

func (f *fakeTranscoder) Compress(ctx context.Context, source string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(f.dir, fmt.Sprintf("compressed-%d.mp4", len(f.paths)))
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		return "", err
	}
	f.paths = append(f.paths, path)
	return path, nil
}

// fakeGenerator is called from both preview goroutines, so path bookkeeping
// is locked; the real Generator is stateless.
type fakeGenerator struct {
	mu          sync.Mutex
	dir         string
	animatedErr error
	stillErr    error
	paths       []string
}

func (f *fakeGenerator) GenerateAnimated(ctx context.Context, localVideoPath string) (string, error) {
	if f.animatedErr != nil {
		return "", f.animatedErr
	}
	return f.write("preview.gif")
}

func (f *fakeGenerator) GenerateStill(ctx context.Context, localVideoPath string, durationSeconds float64) (string, error) {
	if f.stillErr != nil {
		return "", f.stillErr
	}
	return f.write("still.png")
}

func (f *fakeGenerator) write(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := filepath.Join(f.dir, fmt.Sprintf("%d-%s", len(f.paths), name))
	if err := os.WriteFile(path, []byte("asset"), 0o644); err != nil {
		return "", err
	}
	f.paths = append(f.paths, path)
	return path, nil
}

func (f *fakeGenerator) createdPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.paths...)
}

type pipelineFixture struct {
	pipeline   *Pipeline
	store      *fakeStore
	prober     *fakeProber
	transcoder *fakeTranscoder
	generator  *fakeGenerator
	guard      *Guard
}

func newPipelineFixture(t *testing.T, threshold int64) *pipelineFixture {
	t.Helper()
	dir := t.TempDir()

	store := newFakeStore()
	prober := &fakeProber{originalSize: 3_000_000, compressedSize: 2_400_000, duration: 12.5}
	transcoder := &fakeTranscoder{dir: dir}
	generator := &fakeGenerator{dir: dir}
	guard := NewGuard()

	keys, err := NewKeyStrategy("sibling-folder", "videos", "thumbnails")
	require.NoError(t, err)

	pipeline := NewPipeline(Params{
		Store:              store,
		Prober:             prober,
		Transcoder:         transcoder,
		Previews:           generator,
		Keys:               keys,
		Validator:          NewValidator("VID"),
		Guard:              guard,
		Logger:             zap.NewNop(),
		MinCompressionDiff: threshold,
		SignedURLTTL:       time.Minute,
	})

	return &pipelineFixture{
		pipeline:   pipeline,
		store:      store,
		prober:     prober,
		transcoder: transcoder,
		generator:  generator,
		guard:      guard,
	}
}

func requireNoLeftoverFiles(t *testing.T, fx *pipelineFixture) {
	t.Helper()
	for _, path := range append(append([]string{}, fx.transcoder.paths...), fx.generator.createdPaths()...) {
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err), "temp file %s should be removed", path)
	}
}

func TestPipelineReplacesVideoWhenReductionMeetsThreshold(t *testing.T) {
	fx := newPipelineFixture(t, 500_000)
	event := SourceEvent{Bucket: "media", Key: "/videos/VID_trip.mp4"}

	result, err := fx.pipeline.Process(context.Background(), event)
	require.NoError(t, err)

	assert.True(t, result.VideoReplaced)
	assert.Equal(t, "/videos/VID_trip.mp4", result.VideoKey)
	assert.Equal(t, "/videos/thumbnails/VID_trip.gif", result.AnimatedPreviewKey)
	assert.Equal(t, "/videos/thumbnails/VID_trip.png", result.StillPreviewKey)
	assert.Equal(t, int64(600_000), result.ReductionBytes)

	assert.Equal(t, "video/mp4", fx.store.uploads["/videos/VID_trip.mp4"])
	assert.Equal(t, "image/gif", fx.store.uploads["/videos/thumbnails/VID_trip.gif"])
	assert.Equal(t, "image/png", fx.store.uploads["/videos/thumbnails/VID_trip.png"])

	requireNoLeftoverFiles(t, fx)
}

func TestPipelineSkipsVideoWhenReductionBelowThreshold(t *testing.T) {
	fx := newPipelineFixture(t, 500_000)
	fx.prober.compressedSize = 2_900_000

	result, err := fx.pipeline.Process(context.Background(), SourceEvent{Bucket: "media", Key: "/videos/VID_trip.mp4"})
	require.NoError(t, err)

	assert.False(t, result.VideoReplaced)
	assert.Empty(t, result.VideoKey)
	assert.NotContains(t, fx.store.uploads, "/videos/VID_trip.mp4")
	assert.Len(t, fx.store.uploads, 2)

	requireNoLeftoverFiles(t, fx)
}

func TestPipelineThresholdIsInclusive(t *testing.T) {
	const threshold = 500_000

	fx := newPipelineFixture(t, threshold)
	fx.prober.compressedSize = fx.prober.originalSize - threshold
	result, err := fx.pipeline.Process(context.Background(), SourceEvent{Bucket: "media", Key: "videos/VID_exact.mp4"})
	require.NoError(t, err)
	assert.True(t, result.VideoReplaced)

	fx = newPipelineFixture(t, threshold)
	fx.prober.compressedSize = fx.prober.originalSize - threshold + 1
	result, err = fx.pipeline.Process(context.Background(), SourceEvent{Bucket: "media", Key: "videos/VID_short.mp4"})
	require.NoError(t, err)
	assert.False(t, result.VideoReplaced)
}

func TestPipelineRejectsInvalidKey(t *testing.T) {
	fx := newPipelineFixture(t, 500_000)

	_, err := fx.pipeline.Process(context.Background(), SourceEvent{Bucket: "media", Key: "notes.txt"})
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageValidating, stageErr.Stage)
	assert.Equal(t, 400, StatusCode(err))
	assert.Empty(t, fx.store.uploads)
}

func TestPipelineRejectsDuplicateEvent(t *testing.T) {
	fx := newPipelineFixture(t, 500_000)
	event := SourceEvent{Bucket: "media", Key: "videos/VID_trip.mp4"}

	_, err := fx.pipeline.Process(context.Background(), event)
	require.NoError(t, err)

	_, err = fx.pipeline.Process(context.Background(), event)
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageDeduping, stageErr.Stage)
	assert.Equal(t, 400, StatusCode(err))
}

func TestPipelineRerunOverwritesSameKeys(t *testing.T) {
	fx := newPipelineFixture(t, 500_000)
	event := SourceEvent{Bucket: "media", Key: "videos/VID_trip.mp4"}

	first, err := fx.pipeline.Process(context.Background(), event)
	require.NoError(t, err)

	// A redelivery that slips past the guard re-derives the same keys.
	fx.guard.Reset()
	second, err := fx.pipeline.Process(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, first.AnimatedPreviewKey, second.AnimatedPreviewKey)
	assert.Equal(t, first.StillPreviewKey, second.StillPreviewKey)
	assert.Len(t, fx.store.uploads, 3)
}

func TestPipelineAbortsOnProbeFailure(t *testing.T) {
	fx := newPipelineFixture(t, 500_000)
	fx.prober.err = &media.ProbeError{Source: "x", Err: fmt.Errorf("exit status 1")}

	_, err := fx.pipeline.Process(context.Background(), SourceEvent{Bucket: "media", Key: "videos/VID_trip.mp4"})
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageProbing, stageErr.Stage)
	assert.Equal(t, 500, StatusCode(err))
	assert.Empty(t, fx.store.uploads)
}

func TestPipelineAbortsOnTranscodeFailure(t *testing.T) {
	fx := newPipelineFixture(t, 500_000)
	fx.transcoder.err = &media.TranscodeError{Source: "x", Err: fmt.Errorf("exit status 1")}

	_, err := fx.pipeline.Process(context.Background(), SourceEvent{Bucket: "media", Key: "videos/VID_trip.mp4"})
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageTranscoding, stageErr.Stage)
}

func TestPipelineAbortsWhenEitherPreviewFails(t *testing.T) {
	for name, setup := range map[string]func(*fakeGenerator){
		"animated": func(g *fakeGenerator) { g.animatedErr = &media.GenError{Kind: "animated", Err: fmt.Errorf("boom")} },
		"still":    func(g *fakeGenerator) { g.stillErr = &media.GenError{Kind: "still", Err: fmt.Errorf("boom")} },
	} {
		t.Run(name, func(t *testing.T) {
			fx := newPipelineFixture(t, 500_000)
			setup(fx.generator)

			_, err := fx.pipeline.Process(context.Background(), SourceEvent{Bucket: "media", Key: "videos/VID_trip.mp4"})
			require.Error(t, err)

			var stageErr *StageError
			require.ErrorAs(t, err, &stageErr)
			assert.Equal(t, StageGeneratingPreviews, stageErr.Stage)
			assert.Empty(t, fx.store.uploads)
			requireNoLeftoverFiles(t, fx)
		})
	}
}

func TestPipelineAbortsRemainingUploadsOnFirstUploadFailure(t *testing.T) {
	fx := newPipelineFixture(t, 500_000)
	fx.store.failKey = "videos/thumbnails/VID_trip.gif"

	_, err := fx.pipeline.Process(context.Background(), SourceEvent{Bucket: "media", Key: "videos/VID_trip.mp4"})
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageUploading, stageErr.Stage)

	var uploadErr *objectstore.UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, "videos/thumbnails/VID_trip.gif", uploadErr.Key)

	// The replacement video went out first; the still upload never ran.
	assert.Equal(t, []string{"videos/VID_trip.mp4"}, fx.store.order)
	assert.NotContains(t, fx.store.uploads, "videos/thumbnails/VID_trip.png")
	requireNoLeftoverFiles(t, fx)
}

func TestPipelineZeroThresholdAlwaysReplaces(t *testing.T) {
	fx := newPipelineFixture(t, 0)
	fx.prober.compressedSize = fx.prober.originalSize

	result, err := fx.pipeline.Process(context.Background(), SourceEvent{Bucket: "media", Key: "videos/VID_same.mp4"})
	require.NoError(t, err)
	assert.True(t, result.VideoReplaced)
}
