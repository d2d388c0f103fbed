package protocol

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Ingestor accumulates a RunConfig from protocol lines. The first line of a
// run must be a mode key; field lines follow in any order (last write wins)
// and "done" finalizes the run.
type Ingestor struct {
	out      io.Writer
	defaults Defaults

	draft RunConfig
	seen  map[string]bool
	runs  int
}

// NewIngestor creates an ingestor that writes diagnostics and the parameter
// echo to out.
func NewIngestor(out io.Writer, defaults Defaults) *Ingestor {
	if out == nil {
		out = io.Discard
	}
	return &Ingestor{
		out:      out,
		defaults: defaults,
		seen:     make(map[string]bool),
	}
}

// Mode returns the mode of the run being accumulated, or ModeNone while the
// ingestor is waiting for a mode key.
func (in *Ingestor) Mode() Mode { return in.draft.Mode }

// Runs returns the number of runs handed out so far.
func (in *Ingestor) Runs() int { return in.runs }

// Reset discards any partially accumulated run.
func (in *Ingestor) Reset() {
	in.draft = RunConfig{}
	clear(in.seen)
}

// Feed processes one line. busy tells the ingestor that a run is executing,
// in which case "done" is refused. When a run is ready, Feed returns it with
// ok set. The returned error is the diagnostic already written to the host.
func (in *Ingestor) Feed(line string, busy bool) (cfg RunConfig, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return RunConfig{}, false, nil
	}
	tokens := split(line)
	key := tokens[0]

	switch {
	case key == KeyDone:
		return in.done(busy)

	case isModeKey(key):
		mode, _ := ParseMode(key)
		if in.draft.Mode != ModeNone {
			err = in.report(newWarning(ErrModeRestarted, "", "%s discarded, now %s", in.draft.Mode, mode))
		}
		in.Reset()
		in.draft = newDraft(mode, in.defaults)
		return RunConfig{}, false, err

	case in.draft.Mode == ModeNone:
		return RunConfig{}, false, in.report(newError(ErrUnknownMode, "", "%q is not scan, mppt or constantVoltage", key))
	}

	field, found := SchemaFor(in.draft.Mode).Lookup(key)
	if !found {
		return RunConfig{}, false, in.report(newError(ErrUnknownField, key, "not a %s field", in.draft.Mode))
	}

	// Parse into a copy so a rejected line leaves the draft untouched.
	next := in.draft
	if err = field.set(&next, tokens[1:]); err != nil {
		var e *Error
		if !errors.As(err, &e) || !e.Warning {
			return RunConfig{}, false, in.report(err)
		}
		in.report(err)
	}
	in.draft = next
	in.seen[field.ID] = true
	return RunConfig{}, false, err
}

func (in *Ingestor) done(busy bool) (RunConfig, bool, error) {
	defer in.Reset()

	if busy {
		return RunConfig{}, false, in.report(newWarning(ErrBusy, "", "a run is in progress, done ignored"))
	}
	if in.draft.Mode == ModeNone {
		return RunConfig{}, false, in.report(newError(ErrUnknownMode, "", "done received before a mode key"))
	}

	var missing []string
	for _, f := range SchemaFor(in.draft.Mode) {
		if f.Required && !in.seen[f.ID] {
			missing = append(missing, f.ID+"("+f.Name+")")
		}
	}
	if len(missing) > 0 {
		return RunConfig{}, false, in.report(newError(ErrIncompleteConfig, "", "%s missing %s",
			in.draft.Mode, strings.Join(missing, " ")))
	}

	in.runs++
	cfg := in.draft
	cfg.Run = in.runs
	Echo(in.out, &cfg)
	return cfg, true, nil
}

func (in *Ingestor) report(err error) error {
	var e *Error
	if errors.As(err, &e) {
		fmt.Fprintln(in.out, e.Line())
	} else {
		fmt.Fprintln(in.out, "error: "+err.Error())
	}
	return err
}

func isModeKey(key string) bool {
	_, ok := ParseMode(key)
	return ok
}

// split breaks a line into trimmed comma-separated tokens, dropping a single
// trailing empty token left by a trailing comma.
func split(line string) []string {
	tokens := strings.Split(line, ",")
	for i := range tokens {
		tokens[i] = strings.TrimSpace(tokens[i])
	}
	if n := len(tokens); n > 1 && tokens[n-1] == "" {
		tokens = tokens[:n-1]
	}
	return tokens
}
