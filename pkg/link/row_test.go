package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/pvstab/pkg/protocol"
)

func TestParseRow(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		mode     protocol.Mode
		channels int
		want     Row
		wantErr  bool
	}{
		{
			name:     "scan row",
			line:     "5.0000,0.5000,0.4990,2.4000,0.5010,2.3000,1",
			mode:     protocol.ModeScan,
			channels: 2,
			want: Row{
				Elapsed:   5,
				BiasV:     0.5,
				HasBias:   true,
				VoltageV:  []float64{0.499, 0.501},
				CurrentMA: []float64{2.4, 2.3},
				Run:       1,
			},
		},
		{
			name: "mppt row, channels inferred",
			line: "0.1000,0.8000,2.1000,3",
			mode: protocol.ModeMPPT,
			want: Row{
				Elapsed:   0.1,
				VoltageV:  []float64{0.8},
				CurrentMA: []float64{2.1},
				Run:       3,
			},
		},
		{
			name:     "constant voltage row",
			line:     "0.4000,0.8000,0.7990,-0.1000,12",
			mode:     protocol.ModeConstantVoltage,
			channels: 1,
			want: Row{
				Elapsed:   0.4,
				BiasV:     0.8,
				HasBias:   true,
				VoltageV:  []float64{0.799},
				CurrentMA: []float64{-0.1},
				Run:       12,
			},
		},
		{
			name:     "invalid - wrong number of fields",
			line:     "5.0000,0.5000,0.4990,2.4000,1",
			mode:     protocol.ModeScan,
			channels: 2,
			wantErr:  true,
		},
		{
			name:    "invalid - too few fields to infer",
			line:    "5.0000,1",
			mode:    protocol.ModeMPPT,
			wantErr: true,
		},
		{
			name:     "invalid - bad float",
			line:     "5.0000,0.5000,abc,2.4000,1",
			mode:     protocol.ModeScan,
			channels: 1,
			wantErr:  true,
		},
		{
			name:     "invalid - fractional run",
			line:     "5.0000,0.5000,0.5000,2.4000,1.5",
			mode:     protocol.ModeScan,
			channels: 1,
			wantErr:  true,
		},
		{
			name:    "not a row",
			line:    "scan delay (ms): 10",
			mode:    protocol.ModeScan,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRow(tt.line, tt.mode, tt.channels)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRow_NotRow(t *testing.T) {
	_, err := ParseRow("warning: busy: a run is in progress", protocol.ModeScan, 1)
	assert.ErrorIs(t, err, ErrNotRow)
	assert.False(t, IsRow(""))
	assert.True(t, IsRow("0.0000,1"))
}

func TestRow_PowerMW(t *testing.T) {
	r := Row{VoltageV: []float64{0.5, 1}, CurrentMA: []float64{4, 2}}
	assert.Equal(t, 2, r.Channels())
	assert.Equal(t, 2.0, r.PowerMW(0))
	assert.Equal(t, 2.0, r.PowerMW(1))
}
