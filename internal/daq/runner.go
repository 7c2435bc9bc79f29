package daq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"daq-console/internal/capture"
	"daq-console/internal/domain"
)

// Stage names the phase of a run in which an error occurred.
type Stage string

const (
	StageOpen    Stage = "open"
	StageAcquire Stage = "acquire"
	StageWrite   Stage = "write"
)

// RunError is a stage-aware acquisition failure.
type RunError struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error formats run failures for logs and the operator feed.
func (e *RunError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *RunError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Sink is the append-only capture file capability the runner writes into.
// capture.Writer is the production implementation.
type Sink interface {
	Append(event domain.Event) error
	Close() error
	BytesWritten() int64
	Path() string
}

// Request carries one run's configuration, its open source, and the
// callbacks that feed the operator UI.
type Request struct {
	Config domain.AcquisitionConfig
	Source Source

	// OnStatus reports the transition into the running phase.
	OnStatus func(status domain.RunStatus)
	// OnLog emits one throttled progress line.
	OnLog func(line string)
	// OnFileFinalized reports each capture file after it is closed and
	// safe for concurrent reads. It fires exactly once per file, on every
	// exit path.
	OnFileFinalized func(path string, events int)
}

// FileSummary describes one finalized capture file of a run.
type FileSummary struct {
	Path   string `json:"path"`
	Events int    `json:"events"`
}

// Result describes a finished run.
type Result struct {
	Files  []FileSummary `json:"files"`
	Events int           `json:"events"`
}

// Runner executes the acquisition loop: pull one event from the source,
// append it to the capture sink, rotate on size, stop on bounds or
// cooperative cancellation.
type Runner struct {
	log      zerolog.Logger
	now      func() time.Time
	openSink func(path string) (Sink, error)
}

// NewRunner constructs the production runner writing capture files.
func NewRunner(log zerolog.Logger) *Runner {
	return &Runner{
		log: log,
		now: time.Now,
		openSink: func(path string) (Sink, error) {
			return capture.OpenWriter(path)
		},
	}
}

// NewRunnerForTests constructs a runner with injectable clock and sink.
func NewRunnerForTests(log zerolog.Logger, now func() time.Time, openSink func(path string) (Sink, error)) *Runner {
	return &Runner{log: log, now: now, openSink: openSink}
}

// Run drives the source into capture files until a stop condition is met.
// The source is closed and the open file is finalized on every exit path;
// the caller maps the returned error (or nil) to the terminal run status.
func (r *Runner) Run(ctx context.Context, req Request) (result Result, err error) {
	cfg := req.Config
	logEvery := cfg.LogEvery
	if logEvery <= 0 {
		logEvery = 100
	}

	defer func() {
		if closeErr := req.Source.Close(); closeErr != nil {
			r.log.Warn().Err(closeErr).Msg("close acquisition source")
		}
	}()

	base := filepath.Join(cfg.OutputDir, cfg.FileBase)
	sink, err := r.openSegment(base)
	if err != nil {
		return result, &RunError{Stage: StageOpen, Message: "open capture file", Err: err}
	}

	segEvents := 0
	finalize := func() {
		if sink == nil {
			return
		}
		path := sink.Path()
		if closeErr := sink.Close(); closeErr != nil {
			r.log.Error().Err(closeErr).Str("path", path).Msg("finalize capture file")
		}
		result.Files = append(result.Files, FileSummary{Path: path, Events: segEvents})
		if req.OnFileFinalized != nil {
			req.OnFileFinalized(path, segEvents)
		}
		sink = nil
		segEvents = 0
	}
	defer finalize()

	if req.OnStatus != nil {
		req.OnStatus(domain.RunStatusRunning)
	}
	emitLog(req.OnLog, fmt.Sprintf("acquiring into %s", filepath.Base(sink.Path())))

	start := r.now()
	for {
		// Cooperative cancellation: checked between pulls, not mid-pull.
		if ctx.Err() != nil {
			emitLog(req.OnLog, "stop requested, closing capture file")
			return result, nil
		}
		if cfg.MaxDuration > 0 && r.now().Sub(start) >= cfg.MaxDuration {
			emitLog(req.OnLog, "reached max acquisition time")
			return result, nil
		}

		event, nextErr := req.Source.Next(ctx)
		if nextErr != nil {
			if errors.Is(nextErr, io.EOF) {
				emitLog(req.OnLog, "source exhausted")
				return result, nil
			}
			if ctx.Err() != nil {
				emitLog(req.OnLog, "stop requested, closing capture file")
				return result, nil
			}
			return result, &RunError{Stage: StageAcquire, Message: "pull event", Err: nextErr}
		}

		// A size rotation leaves no open sink; the next segment is opened
		// only when another event actually arrives, so a run never ends
		// with an empty trailing file.
		if sink == nil {
			next, openErr := r.openSegment(base)
			if openErr != nil {
				return result, &RunError{Stage: StageOpen, Message: "rotate capture file", Err: openErr}
			}
			sink = next
			emitLog(req.OnLog, fmt.Sprintf("acquiring into %s", filepath.Base(sink.Path())))
		}

		if appendErr := sink.Append(event); appendErr != nil {
			return result, &RunError{Stage: StageWrite, Message: "append event", Err: appendErr}
		}
		result.Events++
		segEvents++

		if result.Events%logEvery == 0 {
			emitLog(req.OnLog, fmt.Sprintf("captured %d events (%s)", result.Events, filepath.Base(sink.Path())))
		}
		if cfg.MaxEvents > 0 && result.Events >= cfg.MaxEvents {
			emitLog(req.OnLog, "reached target number of events")
			return result, nil
		}

		if cfg.MaxFileBytes > 0 && sink.BytesWritten() >= cfg.MaxFileBytes {
			emitLog(req.OnLog, fmt.Sprintf("rotating %s after %d bytes", filepath.Base(sink.Path()), sink.BytesWritten()))
			finalize()
		}
	}
}

// maxSegmentSeq bounds the same-second name retry loop.
const maxSegmentSeq = 1000

// openSegment opens the next capture file. Rotating faster than once per
// second collides on the second-resolution timestamp, so existing names are
// retried with an increasing segment suffix.
func (r *Runner) openSegment(base string) (Sink, error) {
	now := r.now()
	sink, err := r.openSink(capture.Filename(base, now, 0))
	for seq := 1; err != nil && errors.Is(err, fs.ErrExist) && seq < maxSegmentSeq; seq++ {
		sink, err = r.openSink(capture.Filename(base, now, seq))
	}
	return sink, err
}

// emitLog forwards progress lines when a callback is configured.
func emitLog(cb func(line string), line string) {
	if cb != nil {
		cb(line)
	}
}
