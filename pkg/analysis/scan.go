package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/itohio/pvstab/pkg/link"
	"github.com/itohio/pvstab/pkg/protocol"
)

// ChannelJV holds the JV statistics of one channel of a scan.
type ChannelJV struct {
	Channel int
	JVStats
	Err error // set when the channel's curve could not be evaluated
}

// ScanStats evaluates the JV curve of every channel of a recorded scan.
func ScanStats(rows []link.Row, cell Cell) []ChannelJV {
	if len(rows) == 0 {
		return nil
	}
	channels := rows[0].Channels()
	out := make([]ChannelJV, channels)
	v := make([]float64, len(rows))
	i := make([]float64, len(rows))
	for ch := range channels {
		for k, r := range rows {
			if ch >= r.Channels() {
				v[k], i[k] = math.NaN(), math.NaN()
				continue
			}
			v[k] = r.VoltageV[ch]
			i[k] = r.CurrentMA[ch]
		}
		s, err := JV(v, i, cell)
		out[ch] = ChannelJV{Channel: ch, JVStats: s, Err: err}
	}
	return out
}

// SweepDirection infers the direction of a recorded scan from the slope of
// the commanded bias over time. Rows without a commanded bias or fewer than
// two rows report Forward.
func SweepDirection(rows []link.Row) protocol.Direction {
	t := make([]float64, 0, len(rows))
	bias := make([]float64, 0, len(rows))
	for _, r := range rows {
		if !r.HasBias {
			continue
		}
		t = append(t, r.Elapsed)
		bias = append(bias, r.BiasV)
	}
	if len(t) < 2 {
		return protocol.Forward
	}
	_, slope := stat.LinearRegression(t, bias, nil, false)
	if slope < 0 {
		return protocol.Backward
	}
	return protocol.Forward
}
