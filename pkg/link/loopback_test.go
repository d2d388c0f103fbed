package link

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/pvstab/pkg/config"
	"github.com/itohio/pvstab/pkg/protocol"
)

func TestLoopback_Scan(t *testing.T) {
	cfg := config.Default()
	cfg.Board.ID = 42
	cfg.Board.Channels = 2
	cfg.Mock.NoiseMA = 0

	d := NewLoopback(cfg)
	require.NoError(t, d.Connect())
	defer d.Close()
	assert.Equal(t, "42", d.HWID())

	run := protocol.RunConfig{
		Mode: protocol.ModeScan,
		Scan: protocol.ScanParams{RangeV: 0.2, StepV: 0.1, ReadsPerStep: 1, RateMVs: 10000, Illumination: true},
	}
	require.NoError(t, d.Start(run))

	var rows []Row
	timeout := time.After(5 * time.Second)
	for len(rows) < 3 {
		select {
		case row := <-d.Rows():
			rows = append(rows, row)
		case <-timeout:
			t.Fatalf("received %d rows", len(rows))
		}
	}
	for k, row := range rows {
		assert.True(t, row.HasBias)
		assert.InDelta(t, 0.1*float64(k), row.BiasV, 1e-9)
		assert.Equal(t, 2, row.Channels())
		assert.Equal(t, 1, row.Run)
		assert.Greater(t, row.CurrentMA[0], 0.0, "illuminated cell generates")
	}

	var messages []string
	drain := time.After(time.Second)
	for !strings.Contains(strings.Join(messages, "\n"), "scan complete") {
		select {
		case m := <-d.Messages():
			messages = append(messages, m)
		case <-drain:
			t.Fatalf("messages: %q", messages)
		}
	}
	assert.Contains(t, messages, "Measurement Started")
	assert.Contains(t, messages, "mode: scan")

	require.NoError(t, d.Close())
	assert.False(t, d.IsConnected())
	assert.Eventually(t, func() bool { return !d.Bench().Lit() }, time.Second, 10*time.Millisecond)
}
