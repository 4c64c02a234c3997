package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/emitter/internal/core/observability/log"
	"github.com/zeusync/emitter/internal/replay"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"run", "replay", "decode"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
	assert.Equal(t, "c", cmd.PersistentFlags().Lookup("config").Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, `{}`, "decode", "-", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestDecodeText(t *testing.T) {
	out, err := execute(t, `{"ev":1,"w":"hi","item":{"1":{"loc":"g"}}}`, "decode", "-", "--drop", "w")
	require.NoError(t, err)
	assert.Equal(t, "item\nwarn\nforwarded: {\"ev\":1,\"item\":{\"1\":{\"loc\":\"g\"}}}\n", out)
}

func TestDecodeJSONFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"t":"quest"}`+"\n"), 0o644))

	out, err := execute(t, "", "decode", path, "--format", "json")
	require.NoError(t, err)

	var res decodeResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, []string{"task"}, res.Present)
	assert.False(t, res.Reencoded)
	assert.Equal(t, `{"t":"quest"}`, res.Forwarded)
}

func TestDecodeRejectsUnknownCategory(t *testing.T) {
	_, err := execute(t, `{}`, "decode", "-", "--drop", "weather")
	require.Error(t, err)
}

func TestReplayCommand(t *testing.T) {
	clock := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rec, _, err := replay.NewRecorder(t.TempDir(), "cli", func() time.Time { return clock }, log.NewNop())
	require.NoError(t, err)
	rec.RecordFrame([]byte(`{"item":{"5":{"loc":"g"}}}`))
	rec.RecordFrame([]byte(`{"w":"Pakiet odrzucony"}`))
	rec.RecordFrame([]byte(`oops`))
	require.NoError(t, rec.Close())

	t.Setenv("EMITTER_LOG_LEVEL", "fatal")
	out, err := execute(t, "", "replay", rec.Directory(), "--forward")
	require.NoError(t, err)
	assert.Equal(t, `{"item":{"5":{"loc":"g"}}}
{}
frames: 3
decode errors: 1
re-encoded: 1
intercepted: 1
items tracked: 1
`, out)
}
