package bench

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/pvstab/pkg/config"
)

func quietConfig() *config.Config {
	cfg := config.Default()
	cfg.Mock.NoiseMA = 0
	cfg.Mock.GlitchEvery = 0
	return cfg
}

func TestSim_WriteQuantizes(t *testing.T) {
	s := NewSim(quietConfig())

	require.NoError(t, s.Write(3, 1.0))
	assert.InDelta(t, 1.0, s.Bias(3), 3.3/4095)
	assert.Equal(t, 1, s.Writes())

	require.NoError(t, s.Write(3, 4.0))
	assert.Zero(t, s.Bias(3), "out of range bias drives the channel to 0 V")
}

func TestSim_ChannelRange(t *testing.T) {
	s := NewSim(quietConfig())
	assert.Equal(t, 8, s.Channels())

	_, err := s.Read(8)
	assert.ErrorIs(t, err, ErrChannel)
	assert.ErrorIs(t, s.Write(-1, 0), ErrChannel)
}

func TestSim_ShortCircuit(t *testing.T) {
	cfg := quietConfig()
	s := NewSim(cfg)
	require.NoError(t, s.Illumination(true))

	r, err := s.Read(0)
	require.NoError(t, err)
	assert.Zero(t, r.BiasV)
	assert.InDelta(t, cfg.Mock.IscMA, r.CurrentMA, 1e-4)

	r, err = s.Read(4)
	require.NoError(t, err)
	assert.Less(t, r.CurrentMA, cfg.Mock.IscMA, "channels are derated")
}

func TestSim_OpenCircuit(t *testing.T) {
	cfg := quietConfig()
	s := NewSim(cfg)
	require.NoError(t, s.Illumination(true))
	require.NoError(t, s.Write(0, cfg.Mock.Voc))

	r, err := s.Read(0)
	require.NoError(t, err)
	assert.InDelta(t, 0, r.CurrentMA, 0.05)
}

func TestSim_Dark(t *testing.T) {
	s := NewSim(quietConfig())
	require.NoError(t, s.Write(0, 1.0))

	r, err := s.Read(0)
	require.NoError(t, err)
	assert.Less(t, r.CurrentMA, 0.0, "forward-biased dark diode sinks current")
}

func TestSim_Glitch(t *testing.T) {
	cfg := quietConfig()
	cfg.Mock.GlitchEvery = 3
	s := NewSim(cfg)
	require.NoError(t, s.Write(0, 0.5))

	var biases []float64
	for range 6 {
		r, err := s.Read(0)
		require.NoError(t, err)
		biases = append(biases, r.BiasV)
	}
	assert.Equal(t, glitchBiasV, biases[2])
	assert.Equal(t, glitchBiasV, biases[5])
	assert.InDelta(t, 0.5, biases[0], 3.3/4095)
}

func TestSim_FailReads(t *testing.T) {
	s := NewSim(quietConfig())
	boom := errors.New("boom")

	s.FailReads(boom)
	_, err := s.Read(0)
	assert.ErrorIs(t, err, boom)

	s.FailReads(nil)
	_, err = s.Read(0)
	assert.NoError(t, err)
	assert.Equal(t, 1, s.Reads())
}

func TestSafe(t *testing.T) {
	s := NewSim(quietConfig())
	require.NoError(t, WriteAll(s, 0.7))
	require.NoError(t, s.Illumination(true))
	require.NoError(t, s.Indicator(true))

	require.NoError(t, Safe(s))
	for ch := range s.Channels() {
		assert.Zero(t, s.Bias(ch))
	}
	assert.False(t, s.Lit())
	assert.False(t, s.LED())
}
