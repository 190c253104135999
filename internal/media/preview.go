package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// GenError reports a failed preview derivation, naming which preview kind
// could not be produced.
type GenError struct {
	Kind string
	Err  error
}

func (e *GenError) Error() string {
	return fmt.Sprintf("generate %s preview: %v", e.Kind, e.Err)
}

func (e *GenError) Unwrap() error { return e.Err }

// Generator derives the animated loop and the still frame from a local
// video file. Both operations only read the input and are safe to run
// concurrently against the same file.
type Generator struct {
	cfg GeneratorConfig
}

type GeneratorConfig struct {
	FFmpegPath         string
	TempDir            string
	Height             int
	FPS                int
	Duration           time.Duration
	SpeedMultiplier    float64
	CleanupPalette     bool
	StillOffsetPercent int
	Timeout            time.Duration
}

func NewGenerator(cfg GeneratorConfig) *Generator {
	return &Generator{cfg: cfg}
}

// GenerateAnimated produces a short looping GIF using a two-pass palette
// encode. The palette file is removed afterwards when cleanup is enabled.
func (g *Generator) GenerateAnimated(ctx context.Context, localVideoPath string) (string, error) {
	palette := filepath.Join(g.cfg.TempDir, fmt.Sprintf("palette-%s.png", uuid.NewString()))
	output := filepath.Join(g.cfg.TempDir, fmt.Sprintf("preview-%s.gif", uuid.NewString()))

	filters := fmt.Sprintf("setpts=PTS/%s,fps=%d,scale=-2:%d:flags=lanczos",
		formatFloat(g.cfg.SpeedMultiplier), g.cfg.FPS, g.cfg.Height)
	duration := formatFloat(g.cfg.Duration.Seconds())

	_, err := runCommand(ctx, g.cfg.Timeout, g.cfg.FFmpegPath,
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", localVideoPath,
		"-t", duration,
		"-vf", filters+",palettegen",
		palette,
	)
	if err != nil {
		os.Remove(palette)
		return "", &GenError{Kind: "animated", Err: err}
	}
	if g.cfg.CleanupPalette {
		defer os.Remove(palette)
	}

	_, err = runCommand(ctx, g.cfg.Timeout, g.cfg.FFmpegPath,
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", localVideoPath,
		"-i", palette,
		"-t", duration,
		"-lavfi", filters+"[x];[x][1:v]paletteuse",
		output,
	)
	if err != nil {
		os.Remove(output)
		return "", &GenError{Kind: "animated", Err: err}
	}

	return output, nil
}

// GenerateStill extracts one representative frame at a fixed percentage
// offset into the clip, scaled to the target height with the width left to
// the aspect ratio.
func (g *Generator) GenerateStill(ctx context.Context, localVideoPath string, durationSeconds float64) (string, error) {
	output := filepath.Join(g.cfg.TempDir, fmt.Sprintf("still-%s.png", uuid.NewString()))
	offset := durationSeconds * float64(g.cfg.StillOffsetPercent) / 100

	_, err := runCommand(ctx, g.cfg.Timeout, g.cfg.FFmpegPath,
		"-y", "-hide_banner", "-loglevel", "error",
		"-ss", formatFloat(offset),
		"-i", localVideoPath,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=-2:%d", g.cfg.Height),
		output,
	)
	if err != nil {
		os.Remove(output)
		return "", &GenError{Kind: "still", Err: err}
	}

	return output, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
