// Package app routes voice commands to screen state, owns the user's voice
// and haptic preferences, and hands queries to the AI collaborators.
package app

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"odin/internal/assist"
	"odin/internal/command"
	"odin/internal/haptic"
	"odin/internal/history"
	"odin/internal/recognition"
	"odin/internal/scan"
	"odin/internal/speech"
)

const (
	Welcome         = "Connection established. ODIN sensing active."
	Apology         = "Sorry, I didn't catch that."
	AssistantBusy   = "My neural circuits are a bit busy right now. Please wait a few moments before asking again."
	NoAnswer        = "I'm sorry, I couldn't process that."
	ConnectionError = "Connection error. Please try again."
	PathError       = "Path calculation error."
)

var (
	ErrNoDictation  = errors.New("app: screen has no dictation flow")
	ErrNothingHeard = errors.New("app: nothing heard")
)

// Notifier mirrors UI state to a device that renders it.
type Notifier interface {
	Activity()
	Screen(name string)
}

// Journal is the local log of obstacles and submitted feedback.
type Journal interface {
	AddFeedback(ctx context.Context, text string, satisfaction int) (history.Feedback, error)
	Recent(ctx context.Context, n int) ([]history.Record, error)
	RecentFeedback(ctx context.Context, n int) ([]history.Feedback, error)
	Count(ctx context.Context) (int, error)
}

// Deps are the collaborators of an App. Speaker, Haptics and Engine are
// required; the rest may be nil.
type Deps struct {
	Speaker    *speech.Speaker
	Haptics    *haptic.Signal
	Engine     *recognition.Engine
	Dispatcher *command.Dispatcher
	Scanner    *scan.Scanner
	Assistant  assist.Assistant
	Cooldown   *assist.Cooldown
	Notifier   Notifier
	Journal    Journal
}

type draft struct {
	Text         string `json:"text,omitempty"`
	Satisfaction int    `json:"satisfaction"`
}

type App struct {
	Deps

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	// analyzing drops frames while the previous one is with the vision model.
	analyzing atomic.Bool

	mu         sync.Mutex
	screen     command.Screen
	scanning   bool
	location   *assist.Location
	draft      draft
	lastAnswer string
}

func New(deps Deps) *App {
	if deps.Dispatcher == nil {
		deps.Dispatcher = command.NewDispatcher()
	}
	if deps.Cooldown == nil {
		deps.Cooldown = assist.NewCooldown("assistant", scan.QuotaCooldown)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		Deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		screen: command.Scanning,
		draft:  draft{Satisfaction: 3},
	}
}

// Start greets the user and turns on hands-free listening.
func (a *App) Start() {
	a.Speaker.Speak(Welcome, false)
	a.StartListening()
}

func (a *App) StartListening() {
	g := a.Engine.Global()
	g.OnActivity(a.activity)
	g.Start(a.HandleUtterance)
}

func (a *App) StopListening() {
	a.Engine.Global().Stop()
}

// Close stops listening and waits for in-flight collaborator calls.
func (a *App) Close() {
	a.StopListening()
	a.cancel()
	a.wg.Wait()
}

func (a *App) activity() {
	if a.Notifier != nil {
		a.Notifier.Activity()
	}
}

// HandleUtterance dispatches one finalized utterance from the global listener.
func (a *App) HandleUtterance(text string) {
	a.mu.Lock()
	st := command.State{Scanning: a.scanning}
	a.mu.Unlock()

	cmd := a.Dispatcher.Handle(text, st)
	if cmd.Recognized() {
		log.Info("Voice command", "rule", cmd.Rule, "intents", cmd.Intents)
	}
	a.Apply(cmd)
}

// Apply speaks the acknowledgment, pulses, then applies every intent in order.
// An unrecognized command does nothing audibly or visibly.
func (a *App) Apply(cmd command.Command) {
	if len(cmd.Intents) == 1 && cmd.Intents[0].Kind == command.Unrecognized {
		return
	}

	if cmd.Ack != "" {
		a.Speaker.Speak(cmd.Ack, false)
	}
	a.Haptics.Vibrate(cmd.Haptic)

	for _, in := range cmd.Intents {
		a.apply(in)
	}
}

func (a *App) apply(in command.Intent) {
	switch in.Kind {
	case command.NavigateTo:
		a.navigate(in.Screen)
	case command.OpenSettings:
		a.navigate(command.Settings)
	case command.OpenHelp:
		a.navigate(command.Help)
	case command.OpenFeedback:
		a.navigate(command.Feedback)
	case command.OpenAssistant:
		a.navigate(command.Chat)

	case command.StartScan:
		a.setScanning(true)
	case command.StopScan:
		a.setScanning(false)

	case command.SearchDestination:
		a.background(func(ctx context.Context) { a.search(ctx, in.Text) })
	case command.AskAssistant:
		a.background(func(ctx context.Context) { a.ask(ctx, in.Text) })

	case command.AdjustVolume:
		p := a.Speaker.Preferences().WithVolumeDelta(in.Delta)
		a.Speaker.Configure(p.Volume, p.Rate)
	case command.AdjustRate:
		p := a.Speaker.Preferences().WithRateDelta(in.Delta)
		a.Speaker.Configure(p.Volume, p.Rate)
	case command.SetHapticLevel:
		a.Haptics.SetPreference(in.Level)

	case command.RevisitGuide:
		log.Info("Interactive guide requested")
	case command.ContactSupport:
		log.Info("Support contact requested", "via", in.Text)

	case command.RateFeedback:
		a.mu.Lock()
		a.draft.Satisfaction = int(in.Delta)
		a.mu.Unlock()
	case command.AppendFeedback:
		a.mu.Lock()
		a.draft.Text = strings.TrimSpace(a.draft.Text + " " + in.Text)
		a.mu.Unlock()
	case command.SubmitFeedback:
		a.submitFeedback()
	}
}

func (a *App) navigate(s command.Screen) {
	a.mu.Lock()
	changed := a.screen != s
	a.screen = s
	a.mu.Unlock()

	if !changed {
		return
	}
	log.Debug("Screen changed", "screen", s)
	if a.Notifier != nil {
		a.Notifier.Screen(string(s))
	}
}

func (a *App) setScanning(on bool) {
	a.mu.Lock()
	a.scanning = on
	a.mu.Unlock()
	log.Info("Scanning", "active", on)
}

// Dictate runs the phrase flow of the current screen: prompt, capture one
// phrase, apply what it asks for. Capture failures speak the apology.
func (a *App) Dictate(ctx context.Context) (string, command.Command, error) {
	a.mu.Lock()
	screen := a.screen
	a.mu.Unlock()

	d, ok := command.DictationFor(screen)
	if !ok {
		return "", command.Command{}, fmt.Errorf("%w: %s", ErrNoDictation, screen)
	}

	a.Haptics.Vibrate(haptic.Low)
	a.Speaker.Speak(d.Prompt, false)

	text, err := a.Engine.Phrase().Listen(ctx)
	if ctx.Err() != nil {
		return "", command.Command{}, ctx.Err()
	}
	if err == nil && text == "" {
		err = ErrNothingHeard
	}
	if err != nil {
		log.Debug("Phrase capture failed", "screen", screen, "err", err)
		a.Speaker.Speak(Apology, false)
		return "", command.Command{}, err
	}

	cmd := d.Parse(text)
	a.Apply(cmd)

	return text, cmd, nil
}

// Open is the control-surface way to switch screens.
func (a *App) Open(s command.Screen) {
	kind := command.NavigateTo
	switch s {
	case command.Settings:
		kind = command.OpenSettings
	case command.Help:
		kind = command.OpenHelp
	case command.Feedback:
		kind = command.OpenFeedback
	case command.Chat:
		kind = command.OpenAssistant
	}
	a.Apply(command.Command{Rule: "control.open", Intents: []command.Intent{{Kind: kind, Screen: s}}})
}

func (a *App) Say(text string, priority bool) {
	a.Speaker.Speak(text, priority)
}

// OnFrame hands a camera frame to the scanner while the scanning screen is
// active. Frames arriving during an analysis are dropped.
func (a *App) OnFrame(jpeg []byte) {
	if a.Scanner == nil {
		return
	}
	a.mu.Lock()
	live := a.scanning && a.screen == command.Scanning
	a.mu.Unlock()
	if !live || !a.analyzing.CompareAndSwap(false, true) {
		return
	}

	a.background(func(ctx context.Context) {
		defer a.analyzing.Store(false)
		out := a.Scanner.Submit(ctx, jpeg)
		log.Debug("Frame processed", "outcome", out.String())
	})
}

func (a *App) OnLocation(loc assist.Location) {
	a.mu.Lock()
	a.location = &loc
	a.mu.Unlock()
}

func (a *App) background(fn func(ctx context.Context)) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn(a.ctx)
	}()
}

func (a *App) here() *assist.Location {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.location == nil {
		return nil
	}
	loc := *a.location
	return &loc
}

func (a *App) query(ctx context.Context, prompt string) (assist.Answer, error) {
	if a.Assistant == nil {
		return assist.Answer{}, errors.New("app: no assistant configured")
	}
	var ans assist.Answer
	err := a.Cooldown.Do(func() error {
		var err error
		ans, err = a.Assistant.Ask(ctx, prompt, a.here())
		return err
	})
	return ans, err
}

func busy(err error) bool {
	return errors.Is(err, assist.ErrQuotaExhausted) || errors.Is(err, assist.ErrCoolingDown)
}

func (a *App) ask(ctx context.Context, q string) {
	ans, err := a.query(ctx, fmt.Sprintf("Answer as Muninn (ODIN assistant). User query: %s", q))
	switch {
	case busy(err):
		log.Warn("Assistant quota exhausted", "err", err)
		a.answer(AssistantBusy)
	case err != nil:
		log.Error("Assistant query failed", "err", err)
		a.answer(ConnectionError)
	case strings.TrimSpace(ans.Text) == "":
		a.answer(NoAnswer)
	default:
		log.Info("Assistant answered", "sources", len(ans.Grounding))
		a.answer(ans.Text)
	}
}

func (a *App) search(ctx context.Context, dest string) {
	prompt := fmt.Sprintf("Give short spoken walking directions from my current location to %s. "+
		"Mention the distance and the first two turns.", dest)
	ans, err := a.query(ctx, prompt)
	switch {
	case busy(err):
		a.answer(AssistantBusy)
	case err != nil || strings.TrimSpace(ans.Text) == "":
		if err != nil {
			log.Error("Directions query failed", "dest", dest, "err", err)
		}
		a.answer(PathError)
	default:
		a.answer(ans.Text)
	}
}

func (a *App) answer(text string) {
	a.mu.Lock()
	a.lastAnswer = text
	a.mu.Unlock()
	a.Speaker.Speak(text, false)
}

func (a *App) submitFeedback() {
	a.mu.Lock()
	d := a.draft
	a.draft = draft{Satisfaction: 3}
	a.mu.Unlock()

	log.Info("Feedback submitted", "satisfaction", d.Satisfaction, "chars", len(d.Text))
	if a.Journal == nil {
		return
	}
	if _, err := a.Journal.AddFeedback(a.ctx, d.Text, d.Satisfaction); err != nil {
		log.Warn("Failed to store feedback", "err", err)
	}
}
