package replay

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/emitter/internal/core/events/dispatch"
	"github.com/zeusync/emitter/internal/core/events/registry"
	"github.com/zeusync/emitter/internal/core/events/rendezvous"
	"github.com/zeusync/emitter/internal/core/observability/log"
)

func fixedClock() func() time.Time {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(10 * time.Millisecond)
		return now
	}
}

func record(t *testing.T, frames ...string) (*Recorder, string) {
	t.Helper()
	rec, manifest, err := NewRecorder(t.TempDir(), "abc", fixedClock(), log.NewNop())
	require.NoError(t, err)
	assert.Equal(t, FramesName, manifest.FramesPath)
	assert.Equal(t, "abc", manifest.SessionID)

	for _, f := range frames {
		rec.RecordFrame([]byte(f))
	}
	return rec, rec.Directory()
}

func TestRecorderWritesBothStreams(t *testing.T) {
	rec, dir := record(t, `{"ev":1}`, `not json`)
	assert.Equal(t, "abc-20240501T120000Z", filepath.Base(dir))

	var downstream [][]byte
	consumer := rec.Wrap(dispatch.ConsumerFunc(func(_ context.Context, frame []byte) error {
		downstream = append(downstream, frame)
		return nil
	}))
	require.NoError(t, consumer.Consume(context.Background(), []byte(`{}`)))
	require.NoError(t, rec.Close())
	assert.Len(t, downstream, 1)

	var inbound []Record
	require.NoError(t, Each(filepath.Join(dir, FramesName), func(r Record) error {
		inbound = append(inbound, r)
		return nil
	}))
	require.Len(t, inbound, 2)
	assert.Equal(t, uint64(1), inbound[0].Seq)
	assert.Equal(t, `{"ev":1}`, string(inbound[0].Frame))
	assert.Equal(t, uint64(2), inbound[1].Seq)
	assert.Equal(t, `not json`, string(inbound[1].Frame))
	assert.True(t, inbound[1].CapturedAt.After(inbound[0].CapturedAt))

	var forwarded []Record
	require.NoError(t, Each(filepath.Join(dir, ForwardedName), func(r Record) error {
		forwarded = append(forwarded, r)
		return nil
	}))
	require.Len(t, forwarded, 1)
	assert.Equal(t, `{}`, string(forwarded[0].Frame))

	m, base, err := LoadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, base)
	assert.Equal(t, ForwardedName, m.ForwardedPath)
}

func TestRecorderClosed(t *testing.T) {
	rec, _ := record(t)
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())

	rec.RecordFrame([]byte(`{}`))
	assert.Equal(t, uint64(1), rec.Failures())
}

func TestNewRecorderNeedsRoot(t *testing.T) {
	_, _, err := NewRecorder("", "", nil, log.NewNop())
	require.ErrorIs(t, err, ErrNoDirectory)
}

func TestPlayerFeedsPipeline(t *testing.T) {
	rec, dir := record(t,
		`{"ev":1}`,
		`{"w":"Pakiet odrzucony (3)"}`,
		`not json`,
		`{"w":"Brak miejsca w torbie"}`,
	)
	require.NoError(t, rec.Close())

	reg := registry.New()
	_, err := dispatch.RegisterDefaults(reg, nil)
	require.NoError(t, err)

	var out []string
	p := dispatch.New(reg, rendezvous.New(), dispatch.ConsumerFunc(func(_ context.Context, frame []byte) error {
		out = append(out, string(frame))
		return nil
	}), dispatch.WithLogger(log.NewNop()))

	sum, err := NewPlayer(p, log.NewNop()).Play(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 4, sum.Frames)
	assert.Equal(t, 1, sum.DecodeErrors)
	// both warn frames pass through the filter, one keeps its warning
	assert.Equal(t, 2, sum.Intercepted)
	assert.Equal(t, 2, sum.Reencoded)
	assert.Equal(t, []string{`{"ev":1}`, `{}`, `{"w":"Brak miejsca w torbie"}`}, out)
}

func TestPlayerStopsOnCancel(t *testing.T) {
	rec, dir := record(t, `{"ev":1}`, `{"ev":2}`)
	require.NoError(t, rec.Close())

	p := dispatch.New(registry.New(), rendezvous.New(), nil, dispatch.WithLogger(log.NewNop()))
	player := NewPlayer(p, log.NewNop())
	player.Speed = 0.001

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	sum, err := player.Play(ctx, dir)
	require.Error(t, err)
	assert.True(t, IsStop(err))
	assert.Equal(t, 1, sum.Frames)
}

func TestLoadManifestRejectsVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestName), []byte(`{"version":9}`), 0o644))

	_, _, err := LoadManifest(dir)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestEachRejectsUnknownStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.jsonl")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	err := Each(path, func(Record) error { return nil })
	require.ErrorIs(t, err, ErrUnknownStream)
}
