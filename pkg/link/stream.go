package link

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/itohio/pvstab/pkg/engine"
	"github.com/itohio/pvstab/pkg/protocol"
)

const (
	// DefaultBufferSize is the default size of the rows and messages channels.
	DefaultBufferSize = 100
)

// stream splits the board output into data rows and text messages. It
// follows the parameter echo to know the mode of the rows that follow.
type stream struct {
	rows     chan Row
	messages chan string
	channels int

	mu    sync.RWMutex
	mode  protocol.Mode
	hwID  string
	ready chan struct{}
	once  sync.Once
}

func newStream(channels, bufSize int) *stream {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &stream{
		rows:     make(chan Row, bufSize),
		messages: make(chan string, bufSize),
		channels: channels,
		ready:    make(chan struct{}),
	}
}

// run reads r until it fails or ctx is cancelled, then closes the channels.
func (s *stream) run(ctx context.Context, r io.Reader) {
	defer close(s.messages)
	defer close(s.rows)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !s.handle(ctx, line) {
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
		log.Printf("Error reading from board: %v", err)
	}
}

// handle processes one line. It returns false when ctx is done.
func (s *stream) handle(ctx context.Context, line string) bool {
	if IsRow(line) {
		row, err := ParseRow(line, s.Mode(), s.channels)
		if err != nil {
			log.Printf("Failed to parse row '%s': %v", line, err)
			return true
		}
		select {
		case s.rows <- row:
			return true
		case <-ctx.Done():
			return false
		}
	}

	switch {
	case strings.HasPrefix(line, engine.BannerID):
		s.mu.Lock()
		s.hwID = strings.TrimPrefix(line, engine.BannerID)
		s.mu.Unlock()
	case line == engine.BannerReady:
		s.once.Do(func() { close(s.ready) })
	case strings.HasPrefix(line, "mode: "):
		if mode, ok := protocol.ParseMode(strings.TrimPrefix(line, "mode: ")); ok {
			s.mu.Lock()
			s.mode = mode
			s.mu.Unlock()
		}
	}

	select {
	case s.messages <- line:
	case <-ctx.Done():
		return false
	default:
		log.Printf("Messages channel full, dropping '%s'", line)
	}
	return true
}

func (s *stream) Mode() protocol.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

func (s *stream) HWID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hwID
}

// send writes the protocol lines of cfg to w.
func send(w io.Writer, cfg protocol.RunConfig) error {
	lines := protocol.Encode(&cfg)
	if lines == nil {
		return ErrMode
	}
	for _, line := range lines {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}
