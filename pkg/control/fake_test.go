package control

import (
	"bufio"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/itohio/pvstab/pkg/bench"
)

// fakeBench reads back the commanded bias and a current given by curve.
type fakeBench struct {
	bias   []float64
	curve  func(ch int, biasV float64) float64
	tamper func(ch, read int, r bench.Reading) bench.Reading
	onRead func()
	err    error

	reads  []int
	writes int
	light  bool
	led    bool
}

var _ bench.Bench = (*fakeBench)(nil)

func newFakeBench(channels int, curve func(ch int, biasV float64) float64) *fakeBench {
	return &fakeBench{
		bias:  make([]float64, channels),
		curve: curve,
		reads: make([]int, channels),
	}
}

func constantCurrent(mA float64) func(int, float64) float64 {
	return func(int, float64) float64 { return mA }
}

func (f *fakeBench) Channels() int { return len(f.bias) }

func (f *fakeBench) Read(ch int) (bench.Reading, error) {
	if f.err != nil {
		return bench.Reading{}, f.err
	}
	if f.onRead != nil {
		f.onRead()
	}
	f.reads[ch]++
	r := bench.Reading{BiasV: f.bias[ch], CurrentMA: f.curve(ch, f.bias[ch])}
	if f.tamper != nil {
		r = f.tamper(ch, f.reads[ch], r)
	}
	return r, nil
}

func (f *fakeBench) Write(ch int, biasV float64) error {
	f.bias[ch] = biasV
	f.writes++
	return nil
}

func (f *fakeBench) Illumination(on bool) error {
	f.light = on
	return nil
}

func (f *fakeBench) Indicator(on bool) error {
	f.led = on
	return nil
}

// drive polls r on clk until the run finishes or limit polls were made.
func drive(t *testing.T, r *Runner, clk *FakeClock, limit int) (polls int, err error) {
	t.Helper()
	for r.Busy() && polls < limit {
		clk.Set(r.Next())
		polls++
		if _, err = r.Poll(clk.Now()); err != nil {
			return polls, err
		}
	}
	return polls, nil
}

// dataRows returns the numeric rows of out, split into fields.
func dataRows(t *testing.T, out string) [][]float64 {
	t.Helper()
	var rows [][]float64
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] < '0' || line[0] > '9' {
			continue
		}
		var row []float64
		for _, tok := range strings.Split(line, ",") {
			v, err := strconv.ParseFloat(tok, 64)
			require.NoError(t, err, line)
			row = append(row, v)
		}
		rows = append(rows, row)
	}
	return rows
}
