package link

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/itohio/pvstab/pkg/protocol"
)

// ErrNotRow is returned by ParseRow for lines that are not data rows.
var ErrNotRow = errors.New("not a data row")

// Row is one data row emitted by the board.
type Row struct {
	Elapsed   float64 // seconds since the run started
	BiasV     float64 // commanded bias; scan and constant-voltage rows only
	HasBias   bool
	VoltageV  []float64
	CurrentMA []float64
	Run       int
}

// Channels returns the number of channels in the row.
func (r Row) Channels() int {
	return len(r.VoltageV)
}

// PowerMW returns the power of channel ch.
func (r Row) PowerMW(ch int) float64 {
	return r.VoltageV[ch] * r.CurrentMA[ch]
}

// IsRow reports whether line looks like a data row.
func IsRow(line string) bool {
	return line != "" && line[0] >= '0' && line[0] <= '9'
}

// ParseRow parses a data row of a run in the given mode. Scan and
// constant-voltage rows carry the commanded bias after the elapsed time;
// MPPT rows do not. A channels value of zero infers the channel count from
// the number of fields.
func ParseRow(line string, mode protocol.Mode, channels int) (Row, error) {
	if !IsRow(line) {
		return Row{}, ErrNotRow
	}
	parts := strings.Split(strings.TrimSpace(line), ",")

	lead := 1
	if mode != protocol.ModeMPPT {
		lead = 2
	}
	if channels <= 0 {
		channels = (len(parts) - lead - 1) / 2
	}
	if channels <= 0 || len(parts) != lead+2*channels+1 {
		return Row{}, fmt.Errorf("invalid row format: %d values for %d channels in %s mode", len(parts), channels, mode)
	}

	values := make([]float64, len(parts)-1)
	for i := range values {
		v, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return Row{}, fmt.Errorf("invalid field %d: %w", i, err)
		}
		values[i] = v
	}
	run, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return Row{}, fmt.Errorf("invalid run number: %w", err)
	}

	row := Row{
		Elapsed:   values[0],
		VoltageV:  make([]float64, channels),
		CurrentMA: make([]float64, channels),
		Run:       run,
	}
	if lead == 2 {
		row.BiasV = values[1]
		row.HasBias = true
	}
	for ch := range channels {
		row.VoltageV[ch] = values[lead+2*ch]
		row.CurrentMA[ch] = values[lead+2*ch+1]
	}
	return row, nil
}
