package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/itohio/pvstab/pkg/analysis"
	"github.com/itohio/pvstab/pkg/config"
	"github.com/itohio/pvstab/pkg/link"
	"github.com/itohio/pvstab/pkg/protocol"
)

// progressInterval throttles live progress lines.
const progressInterval = 10 * time.Second

func main() {
	var (
		portFlag    = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag  = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag    = flag.Bool("mock", false, "Run against the simulated board instead of a serial port")
		outFlag     = flag.String("o", "", "Output directory override")
		listFlag    = flag.Bool("list", false, "List serial ports and exit")
		plotFlag    = flag.Bool("plot", false, "Save a PNG plot next to the recording")
		analyzeFlag = flag.String("analyze", "", "Print statistics of a recorded CSV file and exit")
		saveFlag    = flag.Bool("save-config", false, "Write the effective configuration back to -config")
	)
	var rf runFlags
	rf.register(flag.CommandLine)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *outFlag != "" {
		cfg.Output.Dir = *outFlag
	}
	if *saveFlag {
		if err := cfg.Save(*configFlag); err != nil {
			log.Fatalf("Failed to save configuration: %v", err)
		}
	}

	switch {
	case *listFlag:
		if err := listPorts(); err != nil {
			log.Fatal(err)
		}
		return
	case *analyzeFlag != "":
		if err := analyze(*analyzeFlag, analysis.CellFrom(cfg), *plotFlag); err != nil {
			log.Fatal(err)
		}
		return
	}

	lines, err := rf.lines(cfg.Board.Channels)
	if err != nil {
		log.Fatal(err)
	}
	run, err := parseRun(cfg, lines)
	if err != nil {
		log.Fatal(err)
	}

	var dev link.Device
	if *mockFlag {
		dev = link.NewLoopback(cfg)
	} else {
		dev = link.New(cfg.Serial, cfg.Board.Channels)
	}
	if err := dev.Connect(); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer dev.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cell := analysis.CellFrom(cfg)
	s := &session{
		dev: dev,
		meta: analysis.Metadata{
			Board:   boardID(dev.HWID(), cfg.Board.ID),
			Started: time.Now(),
			Run:     run,
			Cell:    cell,
		},
		dir:     cfg.Output.Dir,
		monitor: progressMonitor(cell),
		holdFor: rf.holdFor,
	}

	runErr := s.run(ctx)
	if err := s.close(); err != nil {
		log.Printf("Failed to close recording: %v", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Printf("Run ended: %v", runErr)
	}

	rows := s.rows()
	report(os.Stdout, run.Mode, rows, cell)
	if *plotFlag && s.rec != nil {
		if err := plot(strings.TrimSuffix(s.rec.Path(), ".csv")+".png", run.Mode, rows, cell); err != nil {
			log.Printf("Failed to plot: %v", err)
		}
	}
}

func listPorts() error {
	ports, err := link.Ports()
	if err != nil {
		return err
	}
	for _, p := range ports {
		fmt.Printf("%s\t%s\n", p.Name, p.Description)
	}
	return nil
}

func analyze(path string, def analysis.Cell, withPlot bool) error {
	rec, err := analysis.LoadFile(path)
	if err != nil {
		return err
	}
	cell := rec.Cell(def)
	report(os.Stdout, rec.Mode, rec.Rows, cell)
	if !withPlot {
		return nil
	}
	return plot(strings.TrimSuffix(path, filepath.Ext(path))+".png", rec.Mode, rec.Rows, cell)
}

func plot(path string, mode protocol.Mode, rows []link.Row, cell analysis.Cell) error {
	if mode == protocol.ModeScan {
		return analysis.PlotJV(path, rows, cell)
	}
	return analysis.PlotMPPT(path, rows, cell)
}

// progressMonitor logs the latest efficiency of every channel, at most once
// per progressInterval.
func progressMonitor(cell analysis.Cell) *analysis.Monitor {
	m := analysis.NewMonitor(cell, time.Minute)
	var (
		mu   sync.Mutex
		last time.Time
	)
	m.OnUpdate(func(s analysis.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if time.Since(last) < progressInterval || len(s.Rows) == 0 {
			return
		}
		last = time.Now()

		var b strings.Builder
		for ch := range s.PCE {
			fmt.Fprintf(&b, " %.2f", s.Latest(ch))
		}
		log.Printf("t=%.1fs PCE(%%):%s", s.Rows[len(s.Rows)-1].Elapsed, b.String())
	})
	return m
}

func boardID(hwID string, fallback int) int {
	if id, err := strconv.Atoi(strings.TrimSpace(hwID)); err == nil {
		return id
	}
	return fallback
}
