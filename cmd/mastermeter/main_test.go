package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/justyntemme/mastermeter/pkg/compliance"
	"github.com/justyntemme/mastermeter/pkg/dsp/analysis"
	"github.com/justyntemme/mastermeter/pkg/mastering"
)

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeTone(t *testing.T, args ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	code, _, stderr := execute(t, append([]string{"tone", "-out", path, "-seconds", "2"}, args...)...)
	require.Equal(t, 0, code, stderr)
	return path
}

func TestUsage(t *testing.T) {
	code, _, stderr := execute(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Commands:")

	code, stdout, _ := execute(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "automation")

	code, _, stderr = execute(t, "frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "unknown command")

	code, _, _ = execute(t, "loudness", "-h")
	assert.Equal(t, 0, code)
}

func TestLoudnessJSON(t *testing.T) {
	path := writeTone(t)
	code, stdout, stderr := execute(t, "loudness", "-track", path, "-log-level", "off")
	require.Equal(t, 0, code, stderr)

	var res analysis.LoudnessResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.InDelta(t, -3.0, res.IntegratedLUFS, 0.05)
	assert.True(t, res.GatingApplied)
}

func TestLoudnessMsgpack(t *testing.T) {
	path := writeTone(t)
	code, stdout, stderr := execute(t, "loudness", "-track", path, "-format", "msgpack")
	require.Equal(t, 0, code, stderr)

	var res analysis.LoudnessResult
	require.NoError(t, msgpack.Unmarshal([]byte(stdout), &res))
	assert.InDelta(t, -3.0, res.IntegratedLUFS, 0.05)
}

func TestProfileFlag(t *testing.T) {
	path := writeTone(t)
	code, stdout, stderr := execute(t, "dynamics", "-track", path, "-profile", "-log-level", "off")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "crest_factor_db")
	assert.Contains(t, stderr, "dynamics")
	assert.Contains(t, stderr, "count=1")
}

func TestUsageErrors(t *testing.T) {
	path := writeTone(t)

	code, _, stderr := execute(t, "loudness")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "-track")

	code, _, _ = execute(t, "loudness", "-track", path, "-format", "xml")
	assert.Equal(t, 2, code)

	code, _, _ = execute(t, "loudness", "-track", path, "-ref", "left")
	assert.Equal(t, 2, code)

	code, _, stderr = execute(t, "stereo", "-track", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unsupported channel layout")

	code, _, stderr = execute(t, "spectrum", "-track", path, "-fft", "1000")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid parameter")
}

func TestNormalizeApply(t *testing.T) {
	path := writeTone(t)
	out := filepath.Join(t.TempDir(), "normalized.wav")

	code, stdout, stderr := execute(t, "normalize", "-track", path, "-target", "-14", "-apply", out)
	require.Equal(t, 0, code, stderr)
	var n mastering.Normalization
	require.NoError(t, json.Unmarshal([]byte(stdout), &n))
	assert.InDelta(t, -11.0, n.GainDB, 0.05)

	code, stdout, stderr = execute(t, "loudness", "-track", out)
	require.Equal(t, 0, code, stderr)
	var res analysis.LoudnessResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.InDelta(t, -14.0, res.IntegratedLUFS, 0.1)
}

func TestNormalizeRamp(t *testing.T) {
	path := writeTone(t)
	out := filepath.Join(t.TempDir(), "ramped.wav")

	code, stdout, stderr := execute(t, "normalize", "-track", path, "-target", "-14", "-ramp", "0.5", "-apply", out)
	require.Equal(t, 0, code, stderr)
	var n rampedNormalization
	require.NoError(t, json.Unmarshal([]byte(stdout), &n))
	assert.InDelta(t, -11.0, n.GainDB, 0.05)
	require.NotNil(t, n.Ramp)
	require.Len(t, n.Ramp.Points, 2)
	assert.Equal(t, 0.0, n.Ramp.Points[0].GainDB)
	assert.InDelta(t, 0.5, n.Ramp.Points[1].Time, 1e-9)
	assert.InDelta(t, n.GainDB, n.Ramp.Points[1].GainDB, 1e-9)

	// The first half second fades in, so the output is louder than a static
	// -11 dB cut would leave it.
	code, stdout, stderr = execute(t, "loudness", "-track", out)
	require.Equal(t, 0, code, stderr)
	var res analysis.LoudnessResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Greater(t, res.IntegratedLUFS, -14.0)

	code, stdout, _ = execute(t, "normalize", "-track", path, "-target", "-14")
	require.Equal(t, 0, code)
	assert.NotContains(t, stdout, "ramp")

	code, _, _ = execute(t, "normalize", "-track", path, "-ramp", "-1")
	assert.Equal(t, 1, code)
}

func TestLogFile(t *testing.T) {
	path := writeTone(t)
	logPath := filepath.Join(t.TempDir(), "logs", "mastermeter.log")

	code, _, stderr := execute(t, "dynamics", "-track", path, "-log-level", "debug", "-log-file", logPath)
	require.Equal(t, 0, code, stderr)
	assert.NotContains(t, stderr, "source opened")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "source opened")
}

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchRechecksRewrittenFile(t *testing.T) {
	path := writeTone(t, "-level", "-14")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var stdout, stderr syncBuffer
	done := make(chan int, 1)
	go func() {
		done <- run(ctx, []string{"watch", "-track", path, "-preset", "spotify", "-log-level", "off"}, &stdout, &stderr)
	}()

	reports := func() []compliance.Report {
		var out []compliance.Report
		dec := json.NewDecoder(bytes.NewReader([]byte(stdout.String())))
		for {
			var r compliance.Report
			if dec.Decode(&r) != nil {
				return out
			}
			out = append(out, r)
		}
	}
	require.Eventually(t, func() bool { return len(reports()) == 1 }, 5*time.Second, 20*time.Millisecond)

	// Let the watcher register before the file changes.
	time.Sleep(200 * time.Millisecond)
	code, _, errOut := execute(t, "tone", "-out", path, "-seconds", "2", "-level", "-20")
	require.Equal(t, 0, code, errOut)

	require.Eventually(t, func() bool { return len(reports()) >= 2 }, 5*time.Second, 20*time.Millisecond, stderr.String())
	cancel()
	assert.Equal(t, 0, <-done)

	got := reports()
	assert.InDelta(t, -17.0, got[0].Loudness.IntegratedLUFS, 0.1)
	assert.InDelta(t, -23.0, got[len(got)-1].Loudness.IntegratedLUFS, 0.1)
}

func TestAutomation(t *testing.T) {
	path := writeTone(t, "-level", "-20")
	code, stdout, stderr := execute(t, "automation", "-track", path, "-target", "-14", "-max-step", "3")
	require.Equal(t, 0, code, stderr)

	var c mastering.Curve
	require.NoError(t, json.Unmarshal([]byte(stdout), &c))
	require.NotEmpty(t, c.Points)
	require.NoError(t, c.Validate(3))
	assert.InDelta(t, 9.0, c.Points[0].GainDB, 0.1)
}

func TestComplyAndMaster(t *testing.T) {
	master := writeTone(t, "-level", "-14", "-channels", "2")

	code, stdout, stderr := execute(t, "comply", "-master", master, "-preset", "spotify,broadcast")
	require.Equal(t, 0, code, stderr)
	var rep compliance.Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &rep))
	require.Len(t, rep.Verdicts, 2)
	assert.True(t, rep.Verdicts[0].Pass)
	assert.False(t, rep.Verdicts[1].Pass)

	code, _, _ = execute(t, "comply", "-master", master, "-preset", "broadcast", "-strict")
	assert.Equal(t, 1, code)

	code, _, stderr = execute(t, "comply", "-master", master, "-preset", "vinyl")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown preset")

	code, stdout, stderr = execute(t, "master", "-master", master)
	require.Equal(t, 0, code, stderr)
	var mr compliance.MasterReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &mr))
	assert.True(t, mr.Streaming)
	require.NotNil(t, mr.Stereo)

	code, _, _ = execute(t, "master", "-track", master)
	assert.Equal(t, 2, code)
}

func TestMatch(t *testing.T) {
	quiet := writeTone(t, "-level", "-20")
	loud := writeTone(t, "-level", "-6")

	code, stdout, stderr := execute(t, "match", "-track", quiet, "-track", loud, "-ref", "0", "-reference", "1", "-ceiling", "0")
	require.Equal(t, 0, code, stderr)
	var n mastering.Normalization
	require.NoError(t, json.Unmarshal([]byte(stdout), &n))
	assert.InDelta(t, 14.0, n.GainDB, 0.05)
}
