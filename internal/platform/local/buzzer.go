package local

import (
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

const (
	buzzRate = beep.SampleRate(44100)
	buzzFreq = 180
	cueFreq  = 880
)

var speakerOnce struct {
	sync.Once
	err error
}

func initSpeaker() error {
	speakerOnce.Do(func() {
		speakerOnce.err = speaker.Init(buzzRate, buzzRate.N(time.Second/10))
	})
	return speakerOnce.err
}

// Buzzer renders vibration patterns as low tones on the default output.
// Desktops have no motor; the pulses still carry the same rhythm.
type Buzzer struct {
	cuePath string
}

// NewBuzzer takes an optional mp3 earcon played by Cue.
func NewBuzzer(cuePath string) (*Buzzer, error) {
	if err := initSpeaker(); err != nil {
		return nil, fmt.Errorf("speaker init: %w", err)
	}
	return &Buzzer{cuePath: cuePath}, nil
}

func (b *Buzzer) Vibrate(pattern []time.Duration) error {
	if len(pattern) == 0 {
		return nil
	}

	var seq []beep.Streamer
	for i, d := range pattern {
		n := buzzRate.N(d)
		if i%2 == 1 {
			seq = append(seq, beep.Silence(n))
			continue
		}
		seq = append(seq, beep.Take(n, tone(buzzFreq)))
	}

	speaker.Play(beep.Seq(seq...))

	return nil
}

// Cue plays the listening earcon and waits for it to finish, so the
// microphone does not pick it up.
func (b *Buzzer) Cue() {
	s, err := b.earcon()
	if err != nil {
		return
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() { close(done) })))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}

func (b *Buzzer) earcon() (beep.Streamer, error) {
	if b.cuePath == "" {
		return beep.Take(buzzRate.N(120*time.Millisecond), tone(cueFreq)), nil
	}

	f, err := os.Open(b.cuePath)
	if err != nil {
		return nil, err
	}
	s, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return beep.Seq(
		beep.Resample(4, format.SampleRate, buzzRate, s),
		beep.Callback(func() { s.Close() }),
	), nil
}

// tone is an endless sine at half amplitude.
func tone(freq float64) beep.Streamer {
	step := 2 * math.Pi * freq / float64(buzzRate)
	var phase float64
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			v := 0.5 * math.Sin(phase)
			samples[i][0], samples[i][1] = v, v
			phase = math.Mod(phase+step, 2*math.Pi)
		}
		return len(samples), true
	})
}
