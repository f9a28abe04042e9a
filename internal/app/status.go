package app

import (
	"context"
	"fmt"
	log "log/slog"

	"odin/internal/assist"
	"odin/internal/command"
	"odin/internal/haptic"
	"odin/internal/history"
)

// Status is a snapshot for the control socket.
type Status struct {
	Screen     command.Screen   `json:"screen"`
	Scanning   bool             `json:"scanning"`
	Listening  bool             `json:"listening"`
	Global     string           `json:"global"`
	Phrase     string           `json:"phrase"`
	Volume     float64          `json:"volume"`
	Rate       float64          `json:"rate"`
	Haptic     haptic.Level     `json:"haptic"`
	Voice      string           `json:"voice,omitempty"`
	Location   *assist.Location `json:"location,omitempty"`
	LastAnswer string           `json:"last_answer,omitempty"`
	Feedback   draft            `json:"feedback"`
	Obstacles  int              `json:"obstacles"`
	Cooldown   bool             `json:"assistant_cooldown,omitempty"`
}

func (a *App) Status() Status {
	global, phrase := a.Engine.States()
	prefs := a.Speaker.Preferences()

	st := Status{
		Listening: a.Engine.Global().Active(),
		Global:    global.String(),
		Phrase:    phrase.String(),
		Volume:    prefs.Volume,
		Rate:      prefs.Rate,
		Haptic:    a.Haptics.Preference(),
		Location:  a.here(),
		Cooldown:  a.Cooldown.Open(),
	}
	if v := a.Speaker.Voice(); v != nil {
		st.Voice = v.Name
	}

	a.mu.Lock()
	st.Screen = a.screen
	st.Scanning = a.scanning
	st.LastAnswer = a.lastAnswer
	st.Feedback = a.draft
	a.mu.Unlock()

	if a.Journal != nil {
		n, err := a.Journal.Count(a.ctx)
		if err != nil {
			log.Warn("Failed to count obstacles", "err", err)
		}
		st.Obstacles = n
	}

	return st
}

// Timeline is the obstacle count and the newest history entries.
type Timeline struct {
	Obstacles int                `json:"obstacles"`
	Recent    []history.Record   `json:"recent"`
	Feedback  []history.Feedback `json:"feedback,omitempty"`
}

// DefaultTimeline is how many entries a timeline lists when no limit is given.
const DefaultTimeline = 10

// Timeline reads up to n of the newest obstacles and feedback forms.
func (a *App) Timeline(ctx context.Context, n int) (Timeline, error) {
	if a.Journal == nil {
		return Timeline{}, fmt.Errorf("history is not enabled")
	}
	if n <= 0 {
		n = DefaultTimeline
	}

	var tl Timeline
	var err error
	if tl.Obstacles, err = a.Journal.Count(ctx); err != nil {
		return Timeline{}, err
	}
	if tl.Recent, err = a.Journal.Recent(ctx, n); err != nil {
		return Timeline{}, err
	}
	if tl.Feedback, err = a.Journal.RecentFeedback(ctx, n); err != nil {
		return Timeline{}, err
	}
	return tl, nil
}

func (a *App) Screen() command.Screen {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.screen
}

func (a *App) Scanning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scanning
}
