package control

import (
	"io"
	"strconv"
	"time"
)

// rowWriter formats data rows:
//
//	elapsed_s[,commanded_V],V0,I0,...,Vn,In,run
//
// Floats use four decimals. The buffer is reused between rows.
type rowWriter struct {
	out io.Writer
	buf []byte
}

func newRowWriter(out io.Writer, channels int) *rowWriter {
	if out == nil {
		out = io.Discard
	}
	return &rowWriter{out: out, buf: make([]byte, 0, 16+channels*20)}
}

func (w *rowWriter) begin(elapsed time.Duration) {
	w.buf = strconv.AppendFloat(w.buf[:0], elapsed.Seconds(), 'f', 4, 64)
}

func (w *rowWriter) float(v float64) {
	w.buf = append(w.buf, ',')
	w.buf = strconv.AppendFloat(w.buf, v, 'f', 4, 64)
}

func (w *rowWriter) channels(acc []Accumulator) {
	for i := range acc {
		v, c := acc[i].Average()
		w.float(v)
		w.float(c)
	}
}

func (w *rowWriter) end(run int) error {
	w.buf = append(w.buf, ',')
	w.buf = strconv.AppendInt(w.buf, int64(run), 10)
	w.buf = append(w.buf, '\n')
	_, err := w.out.Write(w.buf)
	return err
}
