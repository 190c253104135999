package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Descriptor holds the container metadata the pipeline cares about.
type Descriptor struct {
	SizeBytes       int64
	DurationSeconds float64
	Extension       string
}

// ProbeError reports a failed media inspection. Probe failures are fatal for
// the triggering event; there is no retry.
type ProbeError struct {
	Source string
	Err    error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Source, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Prober wraps ffprobe.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
}

func NewProber(ffprobePath string, timeout time.Duration) *Prober {
	return &Prober{ffprobePath: ffprobePath, timeout: timeout}
}

// ffprobe emits numeric format fields as JSON strings.
type ffprobeFormat struct {
	Format struct {
		Size     string `json:"size"`
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe inspects a media resource addressable by URL or local path.
func (p *Prober) Probe(ctx context.Context, source string) (Descriptor, error) {
	out, err := runCommand(ctx, p.timeout, p.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_entries", "format=size,duration",
		source,
	)
	if err != nil {
		return Descriptor{}, &ProbeError{Source: source, Err: err}
	}

	desc, err := parseProbeOutput(source, out)
	if err != nil {
		return Descriptor{}, &ProbeError{Source: source, Err: err}
	}
	return desc, nil
}

func parseProbeOutput(source string, out []byte) (Descriptor, error) {
	var parsed ffprobeFormat
	if err := json.Unmarshal(out, &parsed); err != nil {
		return Descriptor{}, fmt.Errorf("decode ffprobe output: %w", err)
	}

	size, err := strconv.ParseInt(parsed.Format.Size, 10, 64)
	if err != nil {
		return Descriptor{}, fmt.Errorf("malformed size %q", parsed.Format.Size)
	}
	duration, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil {
		return Descriptor{}, fmt.Errorf("malformed duration %q", parsed.Format.Duration)
	}

	return Descriptor{
		SizeBytes:       size,
		DurationSeconds: duration,
		Extension:       sourceExtension(source),
	}, nil
}
