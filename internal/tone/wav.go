// Package tone synthesizes the pure-tone WAV clips played to participants
// and maps staircase levels to playback amplitude.
package tone

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

const (
	SampleRate    = 44100
	channels      = 2
	bitsPerSample = 16
	pcmFormat     = 1
	// Peak sample value after normalisation, leaving headroom below
	// full scale.
	peak = 32767 * 0.8

	// ReferenceLevel is the staircase level played at full amplitude.
	ReferenceLevel = 40.0
)

// Channel selects which ear hears the tone.
type Channel string

const (
	ChannelLeft  Channel = "left"
	ChannelRight Channel = "right"
	ChannelBoth  Channel = "both"
)

// Params describes one tone clip.
type Params struct {
	Frequency int     `form:"freq"`
	Duration  float64 `form:"duration"`
	Volume    float64 `form:"volume"`
	Channel   Channel `form:"channel"`
}

// DefaultParams returns a 1 kHz, 350 ms clip at full volume in both ears.
func DefaultParams() Params {
	return Params{
		Frequency: 1000,
		Duration:  0.35,
		Volume:    1,
		Channel:   ChannelBoth,
	}
}

var ErrInvalidParams = errors.New("invalid tone parameters")

// Validate checks the clip against the audible and playback limits.
func (p Params) Validate() error {
	switch {
	case p.Frequency < 20 || p.Frequency > 20000:
		return fmt.Errorf("%w: frequency %d outside 20-20000 Hz", ErrInvalidParams, p.Frequency)
	case math.IsNaN(p.Duration) || p.Duration <= 0 || p.Duration > 5:
		return fmt.Errorf("%w: duration %v outside (0, 5] s", ErrInvalidParams, p.Duration)
	case math.IsNaN(p.Volume) || p.Volume < 0 || p.Volume > 1:
		return fmt.Errorf("%w: volume %v outside [0, 1]", ErrInvalidParams, p.Volume)
	}
	switch p.Channel {
	case ChannelLeft, ChannelRight, ChannelBoth:
		return nil
	default:
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidParams, p.Channel)
	}
}

// AmplitudeForLevel converts a staircase level to a linear amplitude in
// [0, 1]: every 20 units below ReferenceLevel divides it by ten.
func AmplitudeForLevel(level float64) float64 {
	a := math.Pow(10, (level-ReferenceLevel)/20)
	if a > 1 {
		return 1
	}
	return a
}

// Generate renders the clip as a 16-bit PCM stereo WAV file.
func Generate(p Params) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	n := int(SampleRate * p.Duration)
	samples := make([]float64, n)
	maxAbs := 0.0
	for i := range samples {
		t := float64(i) / SampleRate
		samples[i] = math.Sin(2*math.Pi*float64(p.Frequency)*t) * p.Volume
		maxAbs = math.Max(maxAbs, math.Abs(samples[i]))
	}
	scale := peak
	if maxAbs > 1 {
		scale /= maxAbs
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: SampleRate},
		Data:           make([]int, n*channels),
		SourceBitDepth: bitsPerSample,
	}
	for i, s := range samples {
		v := int(int16(s * scale))
		if p.Channel != ChannelRight {
			buf.Data[i*channels] = v
		}
		if p.Channel != ChannelLeft {
			buf.Data[i*channels+1] = v
		}
	}

	// The encoder patches the chunk sizes on Close, so it needs a seekable
	// writer.
	out := &writerseeker.WriterSeeker{}
	enc := wav.NewEncoder(out, SampleRate, bitsPerSample, channels, pcmFormat)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encode tone: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode tone: %w", err)
	}
	return io.ReadAll(out.Reader())
}
