package analysis

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/itohio/pvstab/pkg/link"
	"github.com/itohio/pvstab/pkg/protocol"
)

// Metadata keys and column names of recorded files.
const (
	KeyID         = "ID"
	KeyBoard      = "Board"
	KeyMode       = "Mode"
	KeyRun        = "Run"
	KeyStarted    = "Start Date"
	KeyCellArea   = "Cell Area (mm^2)"
	KeyIrradiance = "Irradiance (mW/cm^2)"

	ColumnTime    = "Time"
	ColumnApplied = "Voltage_Applied"
	ColumnRun     = "Run"
)

// FileTimeFormat is the timestamp layout used in file names.
const FileTimeFormat = "Jan-02-2006_15-04-05"

// Metadata describes the run a Recorder captures.
type Metadata struct {
	Board   int
	Started time.Time
	Run     protocol.RunConfig
	Cell    Cell
}

// FileName returns the name of the CSV file for a recording.
func FileName(m Metadata, id uuid.UUID) string {
	return fmt.Sprintf("%s__%d__%s__%s.csv", m.Started.Format(FileTimeFormat), m.Board, m.Run.Mode, id)
}

// Recorder writes rows of one run to a CSV file and keeps them for
// statistics. The file starts with a key/value metadata block followed by the
// column header, which is written with the first row.
type Recorder struct {
	meta Metadata
	id   uuid.UUID
	path string

	mu       sync.Mutex
	f        *os.File
	w        *csv.Writer
	rows     []link.Row
	channels int
}

// NewRecorder creates the output file in dir and writes the metadata block.
func NewRecorder(dir string, m Metadata) (*Recorder, error) {
	if m.Started.IsZero() {
		m.Started = time.Now()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	id := uuid.New()
	path := filepath.Join(dir, FileName(m, id))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}

	r := &Recorder{
		meta: m,
		id:   id,
		path: path,
		f:    f,
		w:    csv.NewWriter(f),
	}
	if err := r.writeMetadata(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Recorder) writeMetadata() error {
	records := [][]string{
		{KeyID, r.id.String()},
		{KeyBoard, strconv.Itoa(r.meta.Board)},
		{KeyMode, r.meta.Run.Mode.String()},
		{KeyRun, strconv.Itoa(r.meta.Run.Run)},
		{KeyStarted, r.meta.Started.Format(time.RFC3339)},
		{KeyCellArea, strconv.FormatFloat(r.meta.Cell.AreaMM2, 'f', -1, 64)},
		{KeyIrradiance, strconv.FormatFloat(r.meta.Cell.IrradianceMWcm2, 'f', -1, 64)},
	}
	schema := protocol.SchemaFor(r.meta.Run.Mode)
	for i := range schema {
		records = append(records, []string{schema[i].Name, schema[i].Value(&r.meta.Run)})
	}
	if err := r.w.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// Header returns the column names of a data block.
func Header(channels int, hasBias bool) []string {
	h := make([]string, 0, 2*channels+3)
	h = append(h, ColumnTime)
	if hasBias {
		h = append(h, ColumnApplied)
	}
	for ch := range channels {
		h = append(h, fmt.Sprintf("Pixel_%d V", ch), fmt.Sprintf("Pixel_%d mA", ch))
	}
	return append(h, ColumnRun)
}

// Write appends one row to the file and the in-memory history.
func (r *Recorder) Write(row link.Row) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil {
		return os.ErrClosed
	}
	if r.channels == 0 {
		r.channels = row.Channels()
		if err := r.w.Write(Header(r.channels, row.HasBias)); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	if row.Channels() != r.channels {
		return fmt.Errorf("row has %d channels, recording has %d", row.Channels(), r.channels)
	}

	rec := make([]string, 0, 2*r.channels+3)
	rec = append(rec, formatValue(row.Elapsed))
	if row.HasBias {
		rec = append(rec, formatValue(row.BiasV))
	}
	for ch := range r.channels {
		rec = append(rec, formatValue(row.VoltageV[ch]), formatValue(row.CurrentMA[ch]))
	}
	rec = append(rec, strconv.Itoa(row.Run))
	if err := r.w.Write(rec); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	r.w.Flush()
	if err := r.w.Error(); err != nil {
		return fmt.Errorf("failed to flush row: %w", err)
	}

	r.rows = append(r.rows, row)
	return nil
}

// Record writes every row received from rows until the channel closes or
// ctx is done.
func (r *Recorder) Record(ctx context.Context, rows <-chan link.Row) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case row, ok := <-rows:
			if !ok {
				return nil
			}
			if err := r.Write(row); err != nil {
				return err
			}
		}
	}
}

// Rows returns a copy of the rows written so far.
func (r *Recorder) Rows() []link.Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]link.Row, len(r.rows))
	copy(out, r.rows)
	return out
}

// Path returns the location of the output file.
func (r *Recorder) Path() string {
	return r.path
}

// ID returns the recording identifier embedded in the file name.
func (r *Recorder) ID() uuid.UUID {
	return r.id
}

// Close flushes and closes the output file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	r.w.Flush()
	werr := r.w.Error()
	cerr := r.f.Close()
	r.f = nil
	if werr != nil {
		return fmt.Errorf("failed to flush recording: %w", werr)
	}
	return cerr
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
