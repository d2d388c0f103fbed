package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/itohio/pvstab/pkg/link"
)

const (
	summaryWindowS = 30.0 // seconds averaged at the end and around the peak
	t90Fraction    = 0.9
)

// Efficiency summarizes the PCE history of one MPPT channel.
type Efficiency struct {
	Channel     int
	MeanPCE     float64 // over the whole run
	LastPCE     float64 // of the final row
	Last30s     float64 // mean over the final 30 s
	Peak30s     float64 // mean over ±15 s around the highest PCE
	Degradation float64 // percent drop from Peak30s to Last30s
	T90Hours    float64 // elapsed hours until PCE first falls to 90% of Peak30s after the peak; +Inf if never
}

// MPPTStats summarizes every channel of a recorded MPPT run.
func MPPTStats(rows []link.Row, cell Cell) []Efficiency {
	if len(rows) == 0 {
		return nil
	}
	channels := rows[0].Channels()
	t := make([]float64, len(rows))
	for k, r := range rows {
		t[k] = r.Elapsed
	}

	out := make([]Efficiency, channels)
	pce := make([]float64, len(rows))
	for ch := range channels {
		for k, r := range rows {
			if ch >= r.Channels() {
				pce[k] = 0
				continue
			}
			pce[k] = cell.PCE(r.PowerMW(ch))
		}
		out[ch] = summarize(ch, t, pce)
	}
	return out
}

func summarize(ch int, t, pce []float64) Efficiency {
	e := Efficiency{
		Channel:  ch,
		MeanPCE:  stat.Mean(pce, nil),
		LastPCE:  pce[len(pce)-1],
		T90Hours: math.Inf(1),
	}

	end := t[len(t)-1]
	e.Last30s = windowMean(t, pce, end-summaryWindowS, end, e.LastPCE)

	peak := floats.MaxIdx(pce)
	if end-t[0] <= summaryWindowS {
		e.Peak30s = e.MeanPCE
	} else {
		half := summaryWindowS / 2
		e.Peak30s = windowMean(t, pce, t[peak]-half, t[peak]+half, pce[peak])
	}

	if e.Peak30s > 0 {
		e.Degradation = (e.Peak30s - e.Last30s) / e.Peak30s * 100
		target := e.Peak30s * t90Fraction
		for k := peak; k < len(pce); k++ {
			if pce[k] <= target {
				e.T90Hours = t[k] / 3600
				break
			}
		}
	}
	return e
}

// windowMean averages the values whose time lies in [from, to], or returns
// fallback when none does.
func windowMean(t, v []float64, from, to, fallback float64) float64 {
	var sum float64
	var n int
	for k := range t {
		if t[k] >= from && t[k] <= to {
			sum += v[k]
			n++
		}
	}
	if n == 0 {
		return fallback
	}
	return sum / float64(n)
}
