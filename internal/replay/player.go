package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"github.com/zeusync/emitter/internal/core/observability/log"
	"github.com/zeusync/emitter/internal/core/protocol/upstream"
)

const maxLine = 16 << 20

// LoadManifest reads the manifest of a recording. path may be the
// directory or the manifest file itself.
func LoadManifest(path string) (Manifest, string, error) {
	manifestPath := path
	info, err := os.Stat(path)
	if err != nil {
		return Manifest{}, "", err
	}
	if info.IsDir() {
		manifestPath = filepath.Join(path, ManifestName)
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return Manifest{}, "", err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, "", fmt.Errorf("parse manifest: %w", err)
	}
	if m.Version != manifestVersion {
		return Manifest{}, "", fmt.Errorf("%w: %d", ErrUnsupportedVersion, m.Version)
	}
	return m, filepath.Dir(manifestPath), nil
}

// Each streams the records of a .jsonl.sz or .jsonl.zst file to fn in order.
func Each(path string, fn func(Record) error) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var reader io.Reader
	switch {
	case strings.HasSuffix(path, ".sz"):
		reader = snappy.NewReader(file)
	case strings.HasSuffix(path, ".zst"):
		dec, err := zstd.NewReader(file)
		if err != nil {
			return err
		}
		defer dec.Close()
		reader = dec
	default:
		return fmt.Errorf("%w: %s", ErrUnknownStream, filepath.Base(path))
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("%s line %d: %w", filepath.Base(path), line, err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Summary describes one playback.
type Summary struct {
	Frames       int           `json:"frames"`
	DecodeErrors int           `json:"decode_errors"`
	Reencoded    int           `json:"reencoded"`
	Intercepted  int           `json:"intercepted"`
	Duration     time.Duration `json:"duration"`
}

// Player feeds a recording into a processor, usually a dispatch pipeline
// with its own registry.
type Player struct {
	processor upstream.Processor
	logger    log.Log
	// Speed scales the recorded gaps between frames. Zero plays as fast as
	// possible.
	Speed float64
}

func NewPlayer(processor upstream.Processor, logger log.Log) *Player {
	if logger == nil {
		logger = log.Provide()
	}
	return &Player{
		processor: processor,
		logger:    logger.With(log.String("component", "replay_player")),
	}
}

// Play processes every inbound frame of the recording at path. Decode
// errors are counted and playback continues; ctx cancellation stops it.
func (p *Player) Play(ctx context.Context, path string) (Summary, error) {
	manifest, dir, err := LoadManifest(path)
	if err != nil {
		return Summary{}, err
	}

	var (
		sum  Summary
		last time.Time
	)
	start := time.Now()
	err = Each(filepath.Join(dir, manifest.FramesPath), func(rec Record) error {
		if err := p.pace(ctx, last, rec.CapturedAt); err != nil {
			return err
		}
		last = rec.CapturedAt

		res, err := p.processor.Process(ctx, rec.Frame)
		sum.Frames++
		if err != nil {
			sum.DecodeErrors++
			p.logger.Debug("recorded frame not decodable", log.Uint64("seq", rec.Seq), log.Error(err))
			return nil
		}
		if res.Reencoded {
			sum.Reencoded++
		}
		for _, ids := range res.Intercepted {
			sum.Intercepted += len(ids)
		}
		return nil
	})
	sum.Duration = time.Since(start)
	if err != nil {
		return sum, err
	}

	p.logger.Info("replay finished",
		log.Int("frames", sum.Frames),
		log.Int("decode_errors", sum.DecodeErrors),
		log.Duration("duration", sum.Duration),
	)
	return sum, nil
}

func (p *Player) pace(ctx context.Context, last, next time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.Speed <= 0 || last.IsZero() || !next.After(last) {
		return nil
	}

	timer := time.NewTimer(time.Duration(float64(next.Sub(last)) / p.Speed))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsStop reports whether err ended a playback early because of ctx.
func IsStop(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
