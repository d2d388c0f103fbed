package analysis

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/itohio/pvstab/pkg/link"
	"github.com/itohio/pvstab/pkg/protocol"
)

// ErrNoHeader is returned when a recording has no column header.
var ErrNoHeader = errors.New("analysis: recording has no header")

// Recording is a recorded run read back from disk.
type Recording struct {
	Meta map[string]string
	Mode protocol.Mode
	Rows []link.Row
}

// Cell returns the cell parameters stored in the metadata, falling back to
// def for missing or malformed entries.
func (r *Recording) Cell(def Cell) Cell {
	c := def
	if v, err := strconv.ParseFloat(r.Meta[KeyCellArea], 64); err == nil {
		c.AreaMM2 = v
	}
	if v, err := strconv.ParseFloat(r.Meta[KeyIrradiance], 64); err == nil {
		c.IrradianceMWcm2 = v
	}
	return c
}

// LoadFile reads a recording written by Recorder.
func LoadFile(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a recording: key/value metadata records up to the column
// header, then one record per row.
func Load(r io.Reader) (*Recording, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rec := &Recording{Meta: make(map[string]string)}
	var header []string
	for header == nil {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil, ErrNoHeader
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read metadata: %w", err)
		}
		if fields[0] == ColumnTime {
			header = fields
			break
		}
		if len(fields) >= 2 {
			rec.Meta[fields[0]] = fields[1]
		}
	}
	rec.Mode, _ = protocol.ParseMode(rec.Meta[KeyMode])

	hasBias := len(header) > 1 && header[1] == ColumnApplied
	lead := 1
	if hasBias {
		lead = 2
	}
	channels := (len(header) - lead - 1) / 2
	if channels <= 0 {
		return nil, fmt.Errorf("invalid header: %d columns", len(header))
	}

	for line := 1; ; line++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rec, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", line, err)
		}
		if len(fields) != len(header) {
			return nil, fmt.Errorf("row %d: %d fields, want %d", line, len(fields), len(header))
		}
		row, err := parseRecord(fields, lead, channels)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		row.HasBias = hasBias
		rec.Rows = append(rec.Rows, row)
	}
}

func parseRecord(fields []string, lead, channels int) (link.Row, error) {
	values := make([]float64, len(fields)-1)
	for i := range values {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return link.Row{}, fmt.Errorf("invalid field %d: %w", i, err)
		}
		values[i] = v
	}
	run, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return link.Row{}, fmt.Errorf("invalid run number: %w", err)
	}

	row := link.Row{
		Elapsed:   values[0],
		VoltageV:  make([]float64, channels),
		CurrentMA: make([]float64, channels),
		Run:       run,
	}
	if lead == 2 {
		row.BiasV = values[1]
	}
	for ch := range channels {
		row.VoltageV[ch] = values[lead+2*ch]
		row.CurrentMA[ch] = values[lead+2*ch+1]
	}
	return row, nil
}
