package analysis

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/itohio/pvstab/pkg/link"
)

// MaxPlotPoints bounds the number of rows drawn per line.
const MaxPlotPoints = 2000

const (
	plotWidth  = 8 * vg.Inch
	plotHeight = 5 * vg.Inch
)

// PlotJV renders the current density over voltage of every channel. The
// format follows the file extension of path (png, svg, pdf).
func PlotJV(path string, rows []link.Row, cell Cell) error {
	p := plot.New()
	p.Title.Text = "JV curves"
	p.X.Label.Text = "Voltage (V)"
	p.Y.Label.Text = "J (mA/cm²)"

	err := addChannels(p, rows, func(r link.Row, ch int) (float64, float64) {
		return r.VoltageV[ch], cell.CurrentDensity(r.CurrentMA[ch])
	})
	if err != nil {
		return err
	}
	return save(p, path)
}

// PlotMPPT renders the efficiency over time of every channel.
func PlotMPPT(path string, rows []link.Row, cell Cell) error {
	p := plot.New()
	p.Title.Text = "MPPT"
	p.X.Label.Text = "Time (min)"
	p.Y.Label.Text = "PCE (%)"

	err := addChannels(p, rows, func(r link.Row, ch int) (float64, float64) {
		return r.Elapsed / 60, cell.PCE(r.PowerMW(ch))
	})
	if err != nil {
		return err
	}
	return save(p, path)
}

func addChannels(p *plot.Plot, rows []link.Row, xy func(link.Row, int) (float64, float64)) error {
	if len(rows) == 0 {
		return fmt.Errorf("no rows to plot")
	}
	rows = Downsample(nil, rows, MaxPlotPoints)

	for ch := range rows[0].Channels() {
		pts := make(plotter.XYs, 0, len(rows))
		for _, r := range rows {
			if ch >= r.Channels() {
				continue
			}
			x, y := xy(r, ch)
			pts = append(pts, plotter.XY{X: x, Y: y})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("channel %d: %w", ch, err)
		}
		line.Color = plotutil.Color(ch)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("Pixel %d", ch), line)
	}

	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return nil
}

func save(p *plot.Plot, path string) error {
	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}
