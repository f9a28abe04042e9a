package local

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxVolume = 150

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

type sinkInput struct {
	ID      int
	Volume  int
	AppName string
}

type fade struct {
	id       int
	from, to int
}

// DuckConfig controls how far other streams are lowered.
type DuckConfig struct {
	Keep   []string      // application.name values left untouched
	Factor float64       // target = current * Factor
	Floor  int           // never duck below this percentage
	Fade   time.Duration // ramp length for both directions
}

func DefaultDuckConfig() DuckConfig {
	return DuckConfig{
		Keep:   []string{"odin", "espeak-ng", "ALSA plug-in [odin-daemon]"},
		Factor: 0.3,
		Floor:  10,
		Fade:   150 * time.Millisecond,
	}
}

// Ducker fades PulseAudio sink inputs of other applications through pactl.
type Ducker struct {
	mu     sync.Mutex
	cfg    DuckConfig
	active bool
	saved  map[int]int // sink input -> volume before Duck

	pactl func(ctx context.Context, args ...string) ([]byte, error)
}

func NewDucker(cfg DuckConfig) *Ducker {
	cfg.Floor = clampVolume(cfg.Floor)
	return &Ducker{
		cfg:   cfg,
		saved: make(map[int]int),
		pactl: func(ctx context.Context, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, "pactl", args...).Output()
		},
	}
}

func (d *Ducker) Duck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	inputs, err := d.list(ctx)
	if err != nil {
		return err
	}

	d.saved = make(map[int]int)
	var fades []fade
	for _, in := range inputs {
		to := int(math.Round(float64(in.Volume) * d.cfg.Factor))
		to = clampVolume(max(to, d.cfg.Floor))
		d.saved[in.ID] = in.Volume
		fades = append(fades, fade{id: in.ID, from: in.Volume, to: to})
	}

	if err := d.ramp(ctx, fades); err != nil {
		return err
	}
	d.active = true

	return nil
}

// Restore returns the streams seen by Duck to their saved volume. Streams
// that appeared in between are left alone.
func (d *Ducker) Restore(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	inputs, err := d.list(ctx)
	if err != nil {
		return err
	}

	var fades []fade
	for _, in := range inputs {
		if orig, ok := d.saved[in.ID]; ok {
			fades = append(fades, fade{id: in.ID, from: in.Volume, to: orig})
		}
	}

	if err := d.ramp(ctx, fades); err != nil {
		return err
	}
	d.saved = make(map[int]int)
	d.active = false

	return nil
}

func (d *Ducker) list(ctx context.Context) ([]sinkInput, error) {
	out, err := d.pactl(ctx, "list", "sink-inputs")
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}

	var res []sinkInput
	for _, in := range parseSinkInputs(string(out)) {
		if !d.keep(in.AppName) {
			res = append(res, in)
		}
	}
	return res, nil
}

func (d *Ducker) keep(app string) bool {
	for _, k := range d.cfg.Keep {
		if app == k {
			return true
		}
	}
	return false
}

func (d *Ducker) ramp(ctx context.Context, fades []fade) error {
	if len(fades) == 0 {
		return nil
	}

	const stepLen = 10 * time.Millisecond
	steps := max(int(d.cfg.Fade/stepLen), 1)
	if d.cfg.Fade <= 0 {
		steps = 0
	}

	for i := 0; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		frac := 1.0
		if steps > 0 {
			frac = float64(i) / float64(steps)
		}
		for _, f := range fades {
			v := int(math.Round(float64(f.from) + float64(f.to-f.from)*frac))
			if _, err := d.pactl(ctx, "set-sink-input-volume", strconv.Itoa(f.id), fmt.Sprintf("%d%%", clampVolume(v))); err != nil {
				return fmt.Errorf("set volume id=%d: %w", f.id, err)
			}
		}

		if i < steps {
			time.Sleep(d.cfg.Fade / time.Duration(steps))
		}
	}

	return nil
}

// parseSinkInputs reads `pactl list sink-inputs`. Only the first channel
// volume and the application.name property are used.
func parseSinkInputs(text string) []sinkInput {
	blocks := strings.Split(text, "Sink Input #")
	if len(blocks) <= 1 {
		return nil
	}

	var res []sinkInput
	for _, block := range blocks[1:] {
		head, body, ok := strings.Cut(block, "\n")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(head))
		if err != nil {
			continue
		}

		in := sinkInput{ID: id}
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)

			switch {
			case strings.HasPrefix(line, "Volume:") && in.Volume == 0:
				if m := percentRe.FindStringSubmatch(line); m != nil {
					in.Volume, _ = strconv.Atoi(m[1])
				}
			case strings.HasPrefix(line, "application.name =") && in.AppName == "":
				_, v, _ := strings.Cut(line, "=")
				in.AppName = strings.Trim(strings.TrimSpace(v), `"`)
			}
		}

		if in.Volume == 0 && in.AppName == "" {
			continue
		}
		res = append(res, in)
	}

	return res
}

func clampVolume(v int) int {
	return min(max(v, 0), maxVolume)
}
