package local

import (
	"context"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"
)

const (
	sampleRate = 16000
	frameSize  = 320 // 20ms
)

// VAD tunes the energy-based endpointing of the microphone.
type VAD struct {
	Threshold float64       // frame RMS above which a frame counts as speech
	Silence   time.Duration // trailing silence that ends an utterance
	MaxLength time.Duration // hard cap on one utterance
	// Idle ends a capture that never heard speech. Zero waits for ctx.
	Idle time.Duration
}

func DefaultVAD() VAD {
	return VAD{
		Threshold: 0.015,
		Silence:   600 * time.Millisecond,
		MaxLength: 10 * time.Second,
		Idle:      8 * time.Second,
	}
}

// Microphone captures one utterance at a time from the default input device.
type Microphone struct {
	vad VAD
}

// OpenMicrophone initializes portaudio; Close terminates it.
func OpenMicrophone(vad VAD) (*Microphone, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	return &Microphone{vad: vad}, nil
}

func (m *Microphone) Close() error {
	return portaudio.Terminate()
}

// Capture records until an utterance ends, the idle window passes without
// speech, or ctx is done. onVoice runs once when speech first appears.
func (m *Microphone) Capture(ctx context.Context, onVoice func()) ([]float32, error) {
	buf := make([]float32, frameSize)
	out := make([]float32, 0, sampleRate*3)

	stream, err := portaudio.OpenDefaultStream(1, 0, sampleRate, len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	frameDur := time.Second * frameSize / sampleRate
	maxFrames := int(m.vad.MaxLength / frameDur)
	idleFrames := int(m.vad.Idle / frameDur)
	silenceFrames := int(m.vad.Silence / frameDur)

	var (
		speaking            bool
		idle, quiet, voiced int
	)

	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if err := stream.Read(); err != nil {
			return nil, err
		}

		switch {
		case rms(buf) > m.vad.Threshold:
			if !speaking && onVoice != nil {
				onVoice()
			}
			speaking = true
			quiet = 0
		case speaking:
			quiet++
		default:
			idle++
			if idleFrames > 0 && idle >= idleFrames {
				return nil, nil
			}
			continue
		}

		out = append(out, buf...)
		voiced++

		if (quiet > 0 && quiet >= silenceFrames) || (maxFrames > 0 && voiced >= maxFrames) {
			break
		}
	}

	return out, nil
}

func rms(f []float32) float64 {
	var s float64
	for _, x := range f {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s / float64(len(f)))
}
