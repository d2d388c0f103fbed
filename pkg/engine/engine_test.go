package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/pvstab/pkg/bench"
	"github.com/itohio/pvstab/pkg/config"
	"github.com/itohio/pvstab/pkg/control"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, channels int) (*Engine, *bench.Sim, *bytes.Buffer) {
	t.Helper()
	Logf = t.Logf
	cfg := config.Default()
	cfg.Board.ID = 7
	cfg.Board.Channels = channels
	cfg.Mock.NoiseMA = 0
	sim := bench.NewSim(cfg)
	var out bytes.Buffer
	return New(cfg, sim, &out), sim, &out
}

// runFor polls e on clk until it goes idle or limit polls were made.
func runFor(e *Engine, clk *control.FakeClock, limit int) {
	for range limit {
		e.Poll(clk.Now())
		next, ok := e.Next(clk.Now())
		if !ok {
			return
		}
		clk.Set(next)
	}
}

func dataLines(out string) []string {
	var rows []string
	for _, line := range strings.Split(out, "\n") {
		if line != "" && line[0] >= '0' && line[0] <= '9' {
			rows = append(rows, line)
		}
	}
	return rows
}

func TestBoot(t *testing.T) {
	e, sim, out := newTestEngine(t, 2)
	require.NoError(t, sim.Write(0, 1))
	require.NoError(t, sim.Indicator(true))

	require.NoError(t, e.Boot())
	assert.Equal(t, "HW_ID:7\nReady\n", out.String())
	assert.Zero(t, sim.Bias(0))
	assert.False(t, sim.LED())
}

func TestEngine_ScanRun(t *testing.T) {
	e, sim, out := newTestEngine(t, 1)
	clk := control.NewFakeClock(epoch)

	e.Feed([]byte("scan\n1,1.0\n2,0.5\n3,2\n4,100\r\ndone\n"))
	assert.True(t, e.Busy())
	assert.Contains(t, out.String(), "mode: scan\nrun: 1\nrange_V: 1\n")

	e.Poll(clk.Now())
	assert.Contains(t, out.String(), "run: 1\n")
	assert.Contains(t, out.String(), Started+"\nscan delay (ms): ")
	assert.True(t, sim.Lit())
	assert.True(t, sim.LED())
	active, ok := e.Active()
	require.True(t, ok)
	assert.Equal(t, 1, active.Run)

	runFor(e, clk, 100)
	assert.False(t, e.Busy())

	rows := dataLines(out.String())
	require.Len(t, rows, 3)
	for k, row := range rows {
		fields := strings.Split(row, ",")
		require.Len(t, fields, 5)
		assert.Equal(t, []string{"0.0000", "0.5000", "1.0000"}[k], fields[1])
		assert.Equal(t, "1", fields[4])
	}
	assert.Contains(t, out.String(), "scan complete: realized rate")

	assert.Zero(t, sim.Bias(0), "safe state after the run")
	assert.False(t, sim.Lit())
	assert.False(t, sim.LED())
}

func TestEngine_DoneWhileBusy(t *testing.T) {
	e, _, out := newTestEngine(t, 2)
	clk := control.NewFakeClock(epoch)

	e.Feed([]byte("constantVoltage\n1,0.5\n2,2\ndone\n"))
	runFor(e, clk, 20)
	require.True(t, e.Busy(), "hold runs until reset")

	e.Feed([]byte("scan\n1,1\n2,0.1\n3,1\n4,10\ndone\n"))
	assert.Contains(t, out.String(), "warning: busy")
	active, ok := e.Active()
	require.True(t, ok)
	assert.Equal(t, 1, active.Run)
	assert.Equal(t, 1, strings.Count(out.String(), Started))

	e.Abort()
	assert.False(t, e.Busy())

	e.Feed([]byte("scan\n1,0\n2,0.1\n3,1\n4,10\ndone\n"))
	runFor(e, clk, 20)
	assert.Equal(t, 2, strings.Count(out.String(), Started))
	assert.Contains(t, out.String(), "run: 2\n")
}

func TestEngine_LineTooLong(t *testing.T) {
	e, _, out := newTestEngine(t, 1)

	e.Feed([]byte(strings.Repeat("x", 250) + "\n"))
	assert.Contains(t, out.String(), "error: line_too_long")

	e.Feed([]byte("mppt\n"))
	assert.NotContains(t, out.String(), "unknown_mode", "framing recovers on the next line")
}

func TestEngine_IncompleteConfig(t *testing.T) {
	e, _, out := newTestEngine(t, 1)

	e.Feed([]byte("scan\n1,1\ndone\n"))
	assert.False(t, e.Busy())
	assert.Contains(t, out.String(), "error: incomplete_config")
	assert.NotContains(t, out.String(), Started)
}

func TestEngine_ReadErrorAborts(t *testing.T) {
	e, sim, out := newTestEngine(t, 2)
	clk := control.NewFakeClock(epoch)
	sim.FailReads(errors.New("i2c nack"))

	e.Feed([]byte("mppt\n1,0.1,0.2,0.3,0.4,0.5,0.6,0.7,0.8\n2,0.01\n3,1\n4,3\n5,10\ndone\n"))
	runFor(e, clk, 20)

	assert.False(t, e.Busy())
	assert.Contains(t, out.String(), "error: run_aborted: read channel 0: i2c nack\n")
	assert.Zero(t, sim.Bias(1))
	assert.False(t, sim.LED())

	sim.FailReads(nil)
	e.Feed([]byte("mppt\n1,0.1,0.2,0.3,0.4,0.5,0.6,0.7,0.8\n2,0.01\n3,0\n4,3\n5,10\ndone\n"))
	runFor(e, clk, 20)
	assert.Contains(t, out.String(), "mppt complete\n")
}

// syncBuffer is a bytes.Buffer safe for one writer and one reader goroutine.
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

func TestServe(t *testing.T) {
	Logf = t.Logf
	cfg := config.Default()
	cfg.Board.Channels = 1
	sim := bench.NewSim(cfg)
	out := &syncBuffer{}
	e := New(cfg, sim, out)

	r, w := io.Pipe()
	done := make(chan error, 1)
	go func() { done <- e.Serve(context.Background(), r) }()

	_, err := io.WriteString(w, "scan\n1,0.2\n2,0.1\n3,1\n4,10000\ndone\n")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "scan complete")
	}, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, dataLines(out.String()), 3)

	require.NoError(t, w.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after end of input")
	}
}

func TestServe_Cancel(t *testing.T) {
	Logf = t.Logf
	cfg := config.Default()
	cfg.Board.Channels = 1
	sim := bench.NewSim(cfg)
	out := &syncBuffer{}
	e := New(cfg, sim, out)

	ctx, cancel := context.WithCancel(context.Background())
	r, w := io.Pipe()
	defer w.Close()
	done := make(chan error, 1)
	go func() { done <- e.Serve(ctx, r) }()

	_, err := io.WriteString(w, "constantVoltage\n1,0.5\n2,1\n3,5\ndone\n")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return len(dataLines(out.String())) >= 3
	}, 5*time.Second, 5*time.Millisecond)
	assert.InDelta(t, 0.5, sim.Bias(0), 0.001)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Zero(t, sim.Bias(0))
}
