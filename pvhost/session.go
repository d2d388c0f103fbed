package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/itohio/pvstab/pkg/analysis"
	"github.com/itohio/pvstab/pkg/control"
	"github.com/itohio/pvstab/pkg/link"
)

var errDisconnected = errors.New("device disconnected")

// session drives one run on a connected device and records its rows.
type session struct {
	dev     link.Device
	meta    analysis.Metadata
	dir     string
	monitor *analysis.Monitor
	holdFor time.Duration // stop an open-ended run after this long, 0 = never

	rec *analysis.Recorder
}

// run starts the run and records rows until the board reports the end of
// the run, an error line arrives, holdFor elapses or ctx is done.
func (s *session) run(ctx context.Context) error {
	if err := s.dev.Start(s.meta.Run); err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}

	var stop <-chan time.Time
	if s.holdFor > 0 {
		t := time.NewTimer(s.holdFor)
		defer t.Stop()
		stop = t.C
	}

	rows, messages := s.dev.Rows(), s.dev.Messages()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case row, ok := <-rows:
			if !ok {
				return errDisconnected
			}
			if err := s.record(row); err != nil {
				return err
			}
		case msg, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			log.Printf("board: %s", msg)
			done, err := finished(msg)
			if !done {
				continue
			}
			// rows precede the closing message on the wire
			for {
				select {
				case row, ok := <-rows:
					if !ok {
						return err
					}
					if rerr := s.record(row); rerr != nil {
						return rerr
					}
				default:
					return err
				}
			}
		}
	}
}

// record writes a row, creating the recording on the first one so that the
// metadata carries the board's run number.
func (s *session) record(row link.Row) error {
	if s.rec == nil {
		meta := s.meta
		meta.Run.Run = row.Run
		rec, err := analysis.NewRecorder(s.dir, meta)
		if err != nil {
			return err
		}
		s.rec = rec
		log.Printf("Recording to %s", rec.Path())
	}
	if err := s.rec.Write(row); err != nil {
		return err
	}
	if s.monitor != nil {
		s.monitor.Add(row)
	}
	return nil
}

// close finishes the recording, if any.
func (s *session) close() error {
	if s.rec == nil {
		return nil
	}
	return s.rec.Close()
}

// rows returns the recorded rows.
func (s *session) rows() []link.Row {
	if s.rec == nil {
		return nil
	}
	return s.rec.Rows()
}

// finished reports whether msg ends the run, and with which error.
func finished(msg string) (bool, error) {
	switch {
	case strings.HasPrefix(msg, control.ScanComplete), msg == control.MPPTComplete:
		return true, nil
	case strings.HasPrefix(msg, "error: "):
		return true, errors.New(strings.TrimPrefix(msg, "error: "))
	}
	return false, nil
}
