// Package replay records the inbound and forwarded frames of a session to
// compressed JSON-lines files and plays recordings back through a pipeline.
package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"github.com/zeusync/emitter/internal/core/events/dispatch"
	"github.com/zeusync/emitter/internal/core/observability/log"
	"github.com/zeusync/emitter/pkg/generic"
)

const (
	ManifestName  = "manifest.json"
	FramesName    = "frames.jsonl.sz"
	ForwardedName = "forwarded.jsonl.zst"

	manifestVersion = 1
)

// Record is one line of a recording. Frame is base64 in the JSON form so
// undecodable frames survive the round trip.
type Record struct {
	Seq        uint64    `json:"seq"`
	CapturedAt time.Time `json:"captured_at"`
	Frame      []byte    `json:"frame"`
}

// Manifest describes a recording directory.
type Manifest struct {
	Version       int    `json:"version"`
	SessionID     string `json:"session_id,omitempty"`
	CreatedAt     string `json:"created_at"`
	FramesPath    string `json:"frames_path"`
	ForwardedPath string `json:"forwarded_path"`
}

var lineBuffers = generic.NewPool(func() *bytes.Buffer { return new(bytes.Buffer) }, (*bytes.Buffer).Reset)

// stream is one compressed JSON-lines sink.
type stream struct {
	file *os.File
	w    interface {
		io.WriteCloser
		Flush() error
	}
	seq atomic.Uint64
}

func (s *stream) append(rec Record) error {
	buf := lineBuffers.Get()
	defer lineBuffers.Put(buf)

	if err := json.NewEncoder(buf).Encode(rec); err != nil {
		return err
	}
	if _, err := s.w.Write(buf.Bytes()); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *stream) close() error {
	werr := s.w.Close()
	ferr := s.file.Close()
	if werr != nil {
		return werr
	}
	return ferr
}

// Recorder writes raw inbound frames (snappy) and forwarded frames (zstd)
// into a fresh directory.
type Recorder struct {
	mu        sync.Mutex
	dir       string
	now       func() time.Time
	logger    log.Log
	frames    *stream
	forwarded *stream
	closed    bool
	failures  atomic.Uint64
}

// NewRecorder creates root/<session>-<timestamp> and opens both streams.
func NewRecorder(root, sessionID string, clock func() time.Time, logger log.Log) (*Recorder, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, ErrNoDirectory
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = log.Provide()
	}

	created := clock().UTC()
	name := "session"
	if sessionID != "" {
		name = sessionID
	}
	dir := filepath.Join(root, fmt.Sprintf("%s-%s", name, created.Format("20060102T150405Z")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	framesFile, err := os.Create(filepath.Join(dir, FramesName))
	if err != nil {
		return nil, Manifest{}, err
	}
	forwardedFile, err := os.Create(filepath.Join(dir, ForwardedName))
	if err != nil {
		_ = framesFile.Close()
		return nil, Manifest{}, err
	}
	enc, err := zstd.NewWriter(forwardedFile)
	if err != nil {
		_ = framesFile.Close()
		_ = forwardedFile.Close()
		return nil, Manifest{}, err
	}

	manifest := Manifest{
		Version:       manifestVersion,
		SessionID:     sessionID,
		CreatedAt:     created.Format(time.RFC3339Nano),
		FramesPath:    FramesName,
		ForwardedPath: ForwardedName,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(dir, ManifestName), data, 0o644)
	}
	if err != nil {
		_ = enc.Close()
		_ = forwardedFile.Close()
		_ = framesFile.Close()
		return nil, Manifest{}, err
	}

	r := &Recorder{
		dir:       dir,
		now:       clock,
		logger:    logger.With(log.String("component", "replay"), log.String("dir", dir)),
		frames:    &stream{file: framesFile, w: snappy.NewBufferedWriter(framesFile)},
		forwarded: &stream{file: forwardedFile, w: enc},
	}
	return r, manifest, nil
}

func (r *Recorder) Directory() string {
	return r.dir
}

// Failures is the number of records that could not be written.
func (r *Recorder) Failures() uint64 {
	return r.failures.Load()
}

// RecordFrame appends an inbound frame. Its signature matches
// upstream.FrameHook; write failures are logged, not returned.
func (r *Recorder) RecordFrame(frame []byte) {
	if err := r.write(r.frames, frame); err != nil {
		r.failures.Add(1)
		r.logger.Warn("recording frame failed", log.Error(err))
	}
}

// Wrap returns a consumer that records every forwarded frame and then
// passes it to next.
func (r *Recorder) Wrap(next dispatch.Consumer) dispatch.Consumer {
	return dispatch.ConsumerFunc(func(ctx context.Context, frame []byte) error {
		if err := r.write(r.forwarded, frame); err != nil {
			r.failures.Add(1)
			r.logger.Warn("recording forwarded frame failed", log.Error(err))
		}
		if next == nil {
			return nil
		}
		return next.Consume(ctx, frame)
	})
}

func (r *Recorder) write(s *stream, frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRecorderClosed
	}
	return s.append(Record{
		Seq:        s.seq.Add(1),
		CapturedAt: r.now().UTC(),
		Frame:      frame,
	})
}

// Close flushes and closes both streams. Later records fail with
// ErrRecorderClosed.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	ferr := r.frames.close()
	werr := r.forwarded.close()
	if ferr != nil {
		return ferr
	}
	return werr
}
