package derivation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/your-org/previewflow/internal/media"
	"github.com/your-org/previewflow/pkg/storage/objectstore"
)

// Stage names the pipeline state in which a failure occurred.
type Stage string

const (
	StageValidating          Stage = "validating"
	StageDeduping            Stage = "deduping"
	StageProbing             Stage = "probing"
	StageTranscoding         Stage = "transcoding"
	StageDecidingCompression Stage = "deciding_compression"
	StageGeneratingPreviews  Stage = "generating_previews"
	StageUploading           Stage = "uploading"
)

// StageError wraps the first failure of a pipeline run with its stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StatusCode maps a pipeline error to its HTTP-equivalent class: validation
// and duplicate rejections are client failures, everything else is a server
// failure. A nil error is full success.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var verr *ValidationError
	var derr *DuplicateEventError
	if errors.As(err, &verr) || errors.As(err, &derr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Prober extracts container metadata from a resource addressable by URL or
// local path.
type Prober interface {
	Probe(ctx context.Context, source string) (media.Descriptor, error)
}

// Transcoder re-encodes a source into a smaller local video file.
type Transcoder interface {
	Compress(ctx context.Context, source string) (string, error)
}

// PreviewGenerator derives the animated loop and the still frame from a
// local video file.
type PreviewGenerator interface {
	GenerateAnimated(ctx context.Context, localVideoPath string) (string, error)
	GenerateStill(ctx context.Context, localVideoPath string, durationSeconds float64) (string, error)
}

// Result describes what a successful run produced and uploaded.
type Result struct {
	VideoReplaced      bool   `json:"video_replaced"`
	VideoKey           string `json:"video_key,omitempty"`
	AnimatedPreviewKey string `json:"animated_preview_key"`
	StillPreviewKey    string `json:"still_preview_key"`
	ReductionBytes     int64  `json:"reduction_bytes"`
}

// Pipeline sequences validate, dedup, probe, transcode, preview generation,
// and upload for one storage-created event. It is stateless per call except
// for the injected idempotency guard.
type Pipeline struct {
	store              objectstore.Client
	prober             Prober
	transcoder         Transcoder
	previews           PreviewGenerator
	keys               KeyStrategy
	validator          *Validator
	guard              *Guard
	logger             *zap.Logger
	tracer             trace.Tracer
	minCompressionDiff int64
	signedURLTTL       time.Duration
}

type Params struct {
	Store              objectstore.Client
	Prober             Prober
	Transcoder         Transcoder
	Previews           PreviewGenerator
	Keys               KeyStrategy
	Validator          *Validator
	Guard              *Guard
	Logger             *zap.Logger
	MinCompressionDiff int64
	SignedURLTTL       time.Duration
}

// NewPipeline constructs a Pipeline.
func NewPipeline(p Params) *Pipeline {
	return &Pipeline{
		store:              p.Store,
		prober:             p.Prober,
		transcoder:         p.Transcoder,
		previews:           p.Previews,
		keys:               p.Keys,
		validator:          p.Validator,
		guard:              p.Guard,
		logger:             p.Logger,
		tracer:             otel.Tracer("previewflow/derivation"),
		minCompressionDiff: p.MinCompressionDiff,
		signedURLTTL:       p.SignedURLTTL,
	}
}

// Process runs the full derivation pipeline for one event. Any failure
// aborts at the first failing stage; temp files never outlive the call.
func (p *Pipeline) Process(ctx context.Context, event SourceEvent) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "derivation.process", trace.WithAttributes(
		attribute.String("storage.bucket", event.Bucket),
		attribute.String("storage.key", event.Key),
	))
	defer span.End()

	temps := &tempSet{logger: p.logger}
	defer temps.removeAll()

	if err := p.validator.Validate(event); err != nil {
		return nil, p.fail(span, StageValidating, err)
	}

	if !p.guard.MarkIfNew(event.Key) {
		return nil, p.fail(span, StageDeduping, &DuplicateEventError{Key: event.Key})
	}

	sourceURL, err := p.store.PresignedGet(ctx, event.Bucket, event.Key, p.signedURLTTL)
	if err != nil {
		return nil, p.fail(span, StageProbing, err)
	}

	original, err := p.prober.Probe(ctx, sourceURL)
	if err != nil {
		return nil, p.fail(span, StageProbing, err)
	}

	compressedPath, err := p.transcoder.Compress(ctx, sourceURL)
	if err != nil {
		return nil, p.fail(span, StageTranscoding, err)
	}
	temps.add(compressedPath)

	compressed, err := p.prober.Probe(ctx, compressedPath)
	if err != nil {
		return nil, p.fail(span, StageDecidingCompression, err)
	}

	reduction := original.SizeBytes - compressed.SizeBytes
	replace := reduction >= p.minCompressionDiff
	span.SetAttributes(
		attribute.Int64("derivation.reduction_bytes", reduction),
		attribute.Bool("derivation.video_replaced", replace),
	)

	// Previews are always derived from the transcoded file: it exists either
	// way and is never larger than the original.
	var (
		wg                      sync.WaitGroup
		animatedPath, stillPath string
		animatedErr, stillErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		animatedPath, animatedErr = p.previews.GenerateAnimated(ctx, compressedPath)
	}()
	go func() {
		defer wg.Done()
		stillPath, stillErr = p.previews.GenerateStill(ctx, compressedPath, compressed.DurationSeconds)
	}()
	wg.Wait()
	temps.add(animatedPath)
	temps.add(stillPath)
	if animatedErr != nil {
		return nil, p.fail(span, StageGeneratingPreviews, animatedErr)
	}
	if stillErr != nil {
		return nil, p.fail(span, StageGeneratingPreviews, stillErr)
	}

	result := &Result{ReductionBytes: reduction}

	if replace {
		videoKey := p.keys.Derive(event.Key, AssetVideo)
		contentType := "video/" + compressed.Extension
		if _, err := p.store.Upload(ctx, compressedPath, event.Bucket, videoKey, contentType); err != nil {
			return nil, p.fail(span, StageUploading, err)
		}
		result.VideoReplaced = true
		result.VideoKey = videoKey
		p.logger.Info("uploaded replacement video",
			zap.String("key", videoKey),
			zap.Int64("reduction_bytes", reduction))
	} else {
		p.logger.Info("skipping video replacement",
			zap.String("key", event.Key),
			zap.Int64("reduction_bytes", reduction),
			zap.Int64("threshold_bytes", p.minCompressionDiff))
	}

	animatedKey := p.keys.Derive(event.Key, AssetAnimatedPreview)
	if _, err := p.store.Upload(ctx, animatedPath, event.Bucket, animatedKey, "image/gif"); err != nil {
		return nil, p.fail(span, StageUploading, err)
	}
	result.AnimatedPreviewKey = animatedKey

	stillKey := p.keys.Derive(event.Key, AssetStillPreview)
	if _, err := p.store.Upload(ctx, stillPath, event.Bucket, stillKey, "image/png"); err != nil {
		return nil, p.fail(span, StageUploading, err)
	}
	result.StillPreviewKey = stillKey

	p.logger.Info("derivation complete",
		zap.String("bucket", event.Bucket),
		zap.String("source_key", event.Key),
		zap.Bool("video_replaced", result.VideoReplaced),
		zap.String("animated_preview_key", animatedKey),
		zap.String("still_preview_key", stillKey))

	return result, nil
}

func (p *Pipeline) fail(span trace.Span, stage Stage, err error) error {
	werr := &StageError{Stage: stage, Err: err}
	span.RecordError(werr)
	span.SetStatus(codes.Error, string(stage))
	p.logger.Warn("pipeline stage failed",
		zap.String("stage", string(stage)),
		zap.Error(err))
	return werr
}

// tempSet tracks locally materialized files for one run so every exit path
// removes them.
type tempSet struct {
	mu     sync.Mutex
	paths  []string
	logger *zap.Logger
}

func (t *tempSet) add(path string) {
	if path == "" {
		return
	}
	t.mu.Lock()
	t.paths = append(t.paths, path)
	t.mu.Unlock()
}

func (t *tempSet) removeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, path := range t.paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			t.logger.Warn("remove temp file", zap.String("path", path), zap.Error(err))
		}
	}
	t.paths = nil
}
