package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// TranscodeError reports a failed re-encode. Transcoding failure aborts the
// event because previews are derived from the compressed output.
type TranscodeError struct {
	Source string
	Err    error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode %s: %v", e.Source, e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// Transcoder re-encodes a source video with libx265 at a constant quality
// factor, keeping the source container.
type Transcoder struct {
	ffmpegPath string
	tempDir    string
	timeout    time.Duration
}

type TranscoderConfig struct {
	FFmpegPath string
	TempDir    string
	Timeout    time.Duration
}

func NewTranscoder(cfg TranscoderConfig) *Transcoder {
	return &Transcoder{
		ffmpegPath: cfg.FFmpegPath,
		tempDir:    cfg.TempDir,
		timeout:    cfg.Timeout,
	}
}

// Compress writes the re-encoded video to a fresh random-suffixed temp path
// so concurrent invocations never collide. The caller owns the returned file.
func (t *Transcoder) Compress(ctx context.Context, source string) (string, error) {
	ext := sourceExtension(source)
	if ext == "" {
		ext = "mp4"
	}
	output := filepath.Join(t.tempDir, fmt.Sprintf("compressed-%s.%s", uuid.NewString(), ext))

	_, err := runCommand(ctx, t.timeout, t.ffmpegPath,
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", source,
		"-c:v", "libx265",
		"-crf", "28",
		output,
	)
	if err != nil {
		os.Remove(output)
		return "", &TranscodeError{Source: source, Err: err}
	}

	return output, nil
}
