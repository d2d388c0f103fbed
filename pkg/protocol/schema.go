package protocol

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Field describes one settable field of a mode's schema.
type Field struct {
	ID       string
	Name     string
	Required bool

	// set parses args (the tokens after the field id) into c.
	set func(c *RunConfig, args []string) error
	// value renders the field from c in a form set accepts.
	value func(c *RunConfig) string
}

// Value renders the field's current value from c.
func (f *Field) Value(c *RunConfig) string { return f.value(c) }

const (
	required = true
	optional = false
)

// Schema is the ordered field table of one mode.
type Schema []Field

// Lookup returns the field with the given id.
func (s Schema) Lookup(id string) (*Field, bool) {
	for i := range s {
		if s[i].ID == id {
			return &s[i], true
		}
	}
	return nil, false
}

// SchemaFor returns the field table of mode.
func SchemaFor(mode Mode) Schema {
	switch mode {
	case ModeScan:
		return scanSchema
	case ModeMPPT:
		return mpptSchema
	case ModeConstantVoltage:
		return holdSchema
	}
	return nil
}

var scanSchema = Schema{
	{
		"1", "range_V", required,
		floatField("range_V", atLeast(0), func(c *RunConfig) *float64 { return &c.Scan.RangeV }),
		func(c *RunConfig) string { return formatFloat(c.Scan.RangeV) },
	},
	{
		"2", "step_V", required,
		floatField("step_V", above(0), func(c *RunConfig) *float64 { return &c.Scan.StepV }),
		func(c *RunConfig) string { return formatFloat(c.Scan.StepV) },
	},
	{
		"3", "reads_per_step", required,
		intField("reads_per_step", 1, func(c *RunConfig) *int { return &c.Scan.ReadsPerStep }),
		func(c *RunConfig) string { return strconv.Itoa(c.Scan.ReadsPerStep) },
	},
	{
		"4", "rate_mV_per_s", required,
		floatField("rate_mV_per_s", above(0), func(c *RunConfig) *float64 { return &c.Scan.RateMVs }),
		func(c *RunConfig) string { return formatFloat(c.Scan.RateMVs) },
	},
	{
		"5", "direction", optional,
		func(c *RunConfig, args []string) error {
			tok, err := single("direction", args)
			if err != nil {
				return err
			}
			switch strings.ToLower(tok) {
			case "0", "forward", "fwd":
				c.Scan.Direction = Forward
			case "1", "backward", "bwd", "reverse":
				c.Scan.Direction = Backward
			default:
				return newError(ErrInvalidValue, "direction", "%q is not forward or backward", tok)
			}
			return nil
		},
		func(c *RunConfig) string { return c.Scan.Direction.String() },
	},
	{
		"6", "illumination", optional,
		boolField("illumination", func(c *RunConfig) *bool { return &c.Scan.Illumination }),
		func(c *RunConfig) string { return formatBool(c.Scan.Illumination) },
	},
}

var mpptSchema = Schema{
	{
		"1", "initial_bias_V", required,
		func(c *RunConfig, args []string) error {
			if len(args) == 0 {
				return newError(ErrMissingValue, "initial_bias_V", "expected %d values", Channels)
			}
			var bias [Channels]float64
			n := min(len(args), Channels)
			for i := 0; i < n; i++ {
				v, err := parseFloat("initial_bias_V", args[i])
				if err != nil {
					return err
				}
				bias[i] = v
			}
			c.MPPT.InitialBiasV = bias
			if n < Channels {
				return newWarning(ErrIncompleteBias, "initial_bias_V",
					"got %d of %d values, channels %d..%d set to 0", n, Channels, n, Channels-1)
			}
			return nil
		},
		func(c *RunConfig) string {
			parts := make([]string, Channels)
			for i, v := range c.MPPT.InitialBiasV {
				parts[i] = formatFloat(v)
			}
			return strings.Join(parts, ",")
		},
	},
	{
		"2", "step_V", required,
		floatField("step_V", above(0), func(c *RunConfig) *float64 { return &c.MPPT.StepV }),
		func(c *RunConfig) string { return formatFloat(c.MPPT.StepV) },
	},
	{
		"3", "duration_min", required,
		floatField("duration_min", atLeast(0), func(c *RunConfig) *float64 { return &c.MPPT.DurationMin }),
		func(c *RunConfig) string { return formatFloat(c.MPPT.DurationMin) },
	},
	{
		"4", "reads_per_step", required,
		intField("reads_per_step", 1, func(c *RunConfig) *int { return &c.MPPT.ReadsPerStep }),
		func(c *RunConfig) string { return strconv.Itoa(c.MPPT.ReadsPerStep) },
	},
	{
		"5", "settle_delay_ms", required,
		msField("settle_delay_ms", func(c *RunConfig) *time.Duration { return &c.MPPT.SettleDelay }),
		func(c *RunConfig) string { return formatMs(c.MPPT.SettleDelay) },
	},
	{
		"6", "sample_interval_ms", optional,
		msField("sample_interval_ms", func(c *RunConfig) *time.Duration { return &c.MPPT.SampleInterval }),
		func(c *RunConfig) string { return formatMs(c.MPPT.SampleInterval) },
	},
	{
		"7", "smoothing", optional,
		intField("smoothing", 1, func(c *RunConfig) *int { return &c.MPPT.Smoothing }),
		func(c *RunConfig) string { return strconv.Itoa(c.MPPT.Smoothing) },
	},
	{
		"8", "illumination", optional,
		boolField("illumination", func(c *RunConfig) *bool { return &c.MPPT.Illumination }),
		func(c *RunConfig) string { return formatBool(c.MPPT.Illumination) },
	},
}

var holdSchema = Schema{
	{
		"1", "bias_V", required,
		floatField("bias_V", nil, func(c *RunConfig) *float64 { return &c.Hold.BiasV }),
		func(c *RunConfig) string { return formatFloat(c.Hold.BiasV) },
	},
	{
		"2", "reads_per_step", required,
		intField("reads_per_step", 1, func(c *RunConfig) *int { return &c.Hold.ReadsPerStep }),
		func(c *RunConfig) string { return strconv.Itoa(c.Hold.ReadsPerStep) },
	},
	{
		"3", "row_interval_ms", optional,
		msField("row_interval_ms", func(c *RunConfig) *time.Duration { return &c.Hold.RowInterval }),
		func(c *RunConfig) string { return formatMs(c.Hold.RowInterval) },
	},
	{
		"4", "illumination", optional,
		boolField("illumination", func(c *RunConfig) *bool { return &c.Hold.Illumination }),
		func(c *RunConfig) string { return formatBool(c.Hold.Illumination) },
	},
}

type bound struct {
	min       float64
	inclusive bool
}

func atLeast(v float64) *bound { return &bound{min: v, inclusive: true} }
func above(v float64) *bound { return &bound{min: v} }

func (b *bound) check(name string, v float64) error {
	if b == nil {
		return nil
	}
	if v < b.min || (!b.inclusive && v == b.min) {
		op := ">"
		if b.inclusive {
			op = ">="
		}
		return newError(ErrInvalidValue, name, "%s must be %s %s", formatFloat(v), op, formatFloat(b.min))
	}
	return nil
}

func single(name string, args []string) (string, error) {
	if len(args) == 0 || args[0] == "" {
		return "", newError(ErrMissingValue, name, "no value given")
	}
	return args[0], nil
}

func parseFloat(name, tok string) (float64, error) {
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, newError(ErrInvalidValue, name, "%q is not a number", tok)
	}
	return v, nil
}

func floatField(name string, b *bound, dst func(*RunConfig) *float64) func(*RunConfig, []string) error {
	return func(c *RunConfig, args []string) error {
		tok, err := single(name, args)
		if err != nil {
			return err
		}
		v, err := parseFloat(name, tok)
		if err != nil {
			return err
		}
		if err := b.check(name, v); err != nil {
			return err
		}
		*dst(c) = v
		return nil
	}
}

func parseInt(name, tok string, minimum int) (int, error) {
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, newError(ErrInvalidValue, name, "%q is not an integer", tok)
	}
	if v < minimum {
		return 0, newError(ErrInvalidValue, name, "%d must be >= %d", v, minimum)
	}
	return v, nil
}

func intField(name string, minimum int, dst func(*RunConfig) *int) func(*RunConfig, []string) error {
	return func(c *RunConfig, args []string) error {
		tok, err := single(name, args)
		if err != nil {
			return err
		}
		v, err := parseInt(name, tok, minimum)
		if err != nil {
			return err
		}
		*dst(c) = v
		return nil
	}
}

func msField(name string, dst func(*RunConfig) *time.Duration) func(*RunConfig, []string) error {
	return func(c *RunConfig, args []string) error {
		tok, err := single(name, args)
		if err != nil {
			return err
		}
		v, err := parseInt(name, tok, 0)
		if err != nil {
			return err
		}
		*dst(c) = time.Duration(v) * time.Millisecond
		return nil
	}
}

func boolField(name string, dst func(*RunConfig) *bool) func(*RunConfig, []string) error {
	return func(c *RunConfig, args []string) error {
		tok, err := single(name, args)
		if err != nil {
			return err
		}
		switch strings.ToLower(tok) {
		case "1", "on", "light", "true":
			*dst(c) = true
		case "0", "off", "dark", "false":
			*dst(c) = false
		default:
			return newError(ErrInvalidValue, name, "%q is not on or off", tok)
		}
		return nil
	}
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func formatMs(d time.Duration) string { return strconv.FormatInt(d.Milliseconds(), 10) }

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
