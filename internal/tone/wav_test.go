package tone

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAt(wav []byte, frame, channel int) int16 {
	off := 44 + frame*4 + channel*2
	return int16(binary.LittleEndian.Uint16(wav[off:]))
}

func TestGenerate_Header(t *testing.T) {
	p := DefaultParams()
	wav, err := Generate(p)
	require.NoError(t, err)

	frames := int(SampleRate * p.Duration)
	require.Len(t, wav, 44+frames*4)
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, uint32(36+frames*4), binary.LittleEndian.Uint32(wav[4:8]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, "fmt ", string(wav[12:16]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[20:22]), "PCM")
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(wav[22:24]))
	assert.Equal(t, uint32(SampleRate), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(SampleRate*4), binary.LittleEndian.Uint32(wav[28:32]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(wav[34:36]))
	assert.Equal(t, "data", string(wav[36:40]))
	assert.Equal(t, uint32(frames*4), binary.LittleEndian.Uint32(wav[40:44]))
}

func TestGenerate_Channels(t *testing.T) {
	p := DefaultParams()
	p.Duration = 0.01

	p.Channel = ChannelLeft
	left, err := Generate(p)
	require.NoError(t, err)
	p.Channel = ChannelRight
	right, err := Generate(p)
	require.NoError(t, err)
	p.Channel = ChannelBoth
	both, err := Generate(p)
	require.NoError(t, err)

	// Frame 11 of a 1 kHz tone is near the positive peak.
	assert.NotZero(t, sampleAt(left, 11, 0))
	assert.Zero(t, sampleAt(left, 11, 1))
	assert.Zero(t, sampleAt(right, 11, 0))
	assert.NotZero(t, sampleAt(right, 11, 1))
	assert.Equal(t, sampleAt(both, 11, 0), sampleAt(both, 11, 1))
	assert.Equal(t, sampleAt(left, 11, 0), sampleAt(both, 11, 0))
}

func TestGenerate_Amplitude(t *testing.T) {
	p := DefaultParams()
	wav, err := Generate(p)
	require.NoError(t, err)

	var maxSample int16
	for i := 0; i < int(SampleRate*p.Duration); i++ {
		if s := sampleAt(wav, i, 0); s > maxSample {
			maxSample = s
		}
	}
	assert.LessOrEqual(t, float64(maxSample), 32767*0.8)
	assert.Greater(t, float64(maxSample), 32767*0.79)

	p.Volume = 0
	silent, err := Generate(p)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		assert.Zero(t, sampleAt(silent, i, 0))
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"frequency too low", func(p *Params) { p.Frequency = 19 }},
		{"frequency too high", func(p *Params) { p.Frequency = 20001 }},
		{"zero duration", func(p *Params) { p.Duration = 0 }},
		{"long duration", func(p *Params) { p.Duration = 5.5 }},
		{"nan duration", func(p *Params) { p.Duration = math.NaN() }},
		{"negative volume", func(p *Params) { p.Volume = -0.1 }},
		{"loud volume", func(p *Params) { p.Volume = 1.5 }},
		{"unknown channel", func(p *Params) { p.Channel = "center" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidParams)
			_, err := Generate(p)
			assert.ErrorIs(t, err, ErrInvalidParams)
		})
	}

	p := DefaultParams()
	p.Frequency, p.Duration = 20, 5
	assert.NoError(t, p.Validate())
}

func TestAmplitudeForLevel(t *testing.T) {
	assert.InDelta(t, 1.0, AmplitudeForLevel(40), 1e-12)
	assert.InDelta(t, 0.1, AmplitudeForLevel(20), 1e-12)
	assert.InDelta(t, 0.01, AmplitudeForLevel(0), 1e-12)
	assert.InDelta(t, math.Pow(10, -2.5), AmplitudeForLevel(-10), 1e-12)
	assert.Equal(t, 1.0, AmplitudeForLevel(60))
}
