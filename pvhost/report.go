package main

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/itohio/pvstab/pkg/analysis"
	"github.com/itohio/pvstab/pkg/link"
	"github.com/itohio/pvstab/pkg/protocol"
)

// report prints the statistics table of a finished run.
func report(w io.Writer, mode protocol.Mode, rows []link.Row, cell analysis.Cell) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "no rows recorded")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	defer tw.Flush()

	switch mode {
	case protocol.ModeScan:
		fmt.Fprintf(tw, "%s sweep, %d rows\n", analysis.SweepDirection(rows), len(rows))
		fmt.Fprintln(tw, "pixel\tVoc (V)\tJsc (mA/cm²)\tVmp (V)\tFF\tPCE (%)\t")
		for _, s := range analysis.ScanStats(rows, cell) {
			if s.Err != nil {
				fmt.Fprintf(tw, "%d\t%v\t\t\t\t\t\n", s.Channel, s.Err)
				continue
			}
			fmt.Fprintf(tw, "%d\t%.4f\t%.3f\t%.4f\t%.3f\t%.2f\t\n", s.Channel, s.Voc, s.Jsc, s.Vmp, s.FF, s.PCE)
		}
	case protocol.ModeMPPT:
		fmt.Fprintf(tw, "%d rows over %.1f min\n", len(rows), rows[len(rows)-1].Elapsed/60)
		fmt.Fprintln(tw, "pixel\tmean PCE (%)\tlast 30s\tpeak 30s\tdegradation (%)\tT90 (h)\t")
		for _, e := range analysis.MPPTStats(rows, cell) {
			t90 := "-"
			if !math.IsInf(e.T90Hours, 1) {
				t90 = fmt.Sprintf("%.3f", e.T90Hours)
			}
			fmt.Fprintf(tw, "%d\t%.2f\t%.2f\t%.2f\t%.1f\t%s\t\n", e.Channel, e.MeanPCE, e.Last30s, e.Peak30s, e.Degradation, t90)
		}
	default:
		last := rows[len(rows)-1]
		fmt.Fprintf(tw, "%d rows, last at %.1f s\n", len(rows), last.Elapsed)
		fmt.Fprintln(tw, "pixel\tV\tmA\tPCE (%)\t")
		for ch := range last.Channels() {
			fmt.Fprintf(tw, "%d\t%.4f\t%.4f\t%.2f\t\n", ch, last.VoltageV[ch], last.CurrentMA[ch], cell.PCE(last.PowerMW(ch)))
		}
	}
}
