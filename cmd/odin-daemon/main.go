package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	log "log/slog"

	"odin/internal/app"
	"odin/internal/assist"
	"odin/internal/config"
	"odin/internal/haptic"
	"odin/internal/history"
	"odin/internal/ipc"
	"odin/internal/metrics"
	"odin/internal/platform/bridge"
	"odin/internal/platform/local"
	"odin/internal/proxy"
	"odin/internal/recognition"
	"odin/internal/scan"
	"odin/internal/speech"
)

// HistoryTTL bounds how long detections are kept on disk.
const HistoryTTL = 30 * 24 * time.Hour

// platform is the set of device capabilities the core runs on.
type platform struct {
	rec     recognition.Recognizer
	synth   speech.Synthesizer
	vib     haptic.Vibrator
	bridge  *bridge.Bridge
	closers []io.Closer
}

func (p *platform) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil {
			log.Debug("Platform close failed", "err", err)
		}
	}
}

func main() {
	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      cfg.LogLevel(),
		TimeFormat: time.Kitchen,
	})))

	log.Info("Booting up", "platform", cfg.Platform)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	plat, err := openPlatform(ctx, cfg)
	if err != nil {
		log.Error("Failed to open platform", "platform", cfg.Platform, "err", err)
		os.Exit(1)
	}
	defer plat.Close()

	store, err := history.Open(history.Options{
		Dir:      cfg.DataDir,
		InMemory: cfg.DataDir == "",
		TTL:      HistoryTTL,
	})
	if err != nil {
		log.Error("Failed to open history", "dir", cfg.DataDir, "err", err)
		os.Exit(1)
	}
	defer store.Close()

	vision, assistant, err := openCollaborators(ctx, cfg)
	if err != nil {
		log.Error("Failed to set up collaborators", "err", err)
		os.Exit(1)
	}

	level, _ := haptic.ParseLevel(cfg.Haptic)
	haptics := haptic.NewSignal(plat.vib)
	haptics.SetPreference(level)

	speaker := speech.NewSpeaker(plat.synth, speech.WithPreferences(speech.Preferences{
		Volume: cfg.Volume,
		Rate:   cfg.Rate,
	}))

	engine := recognition.NewEngine(plat.rec,
		recognition.WithLang(cfg.Lang),
		recognition.WithStateObserver(func(owner recognition.Owner, state recognition.SessionState) {
			log.Debug("Recognition state", "owner", owner.String(), "state", state.String())
		}),
	)
	defer engine.Close()

	deps := app.Deps{
		Speaker:   speaker,
		Haptics:   haptics,
		Engine:    engine,
		Assistant: assistant,
		Cooldown:  assist.NewCooldown("assistant", cfg.QuotaCooldown),
		Journal:   store,
	}
	if vision != nil {
		deps.Scanner = scan.New(vision, speaker, haptics,
			scan.WithHistory(store),
			scan.WithCooldown(assist.NewCooldown("vision", cfg.QuotaCooldown)),
			scan.OnObstacles(func(obs []assist.Obstacle) {
				log.Debug("Obstacles detected", "count", len(obs), "top", obs[0].Label)
			}),
		)
	}
	if plat.bridge != nil {
		deps.Notifier = plat.bridge
	}

	a := app.New(deps)
	defer a.Close()

	if b := plat.bridge; b != nil {
		b.OnFrame(a.OnFrame)
		b.OnLocation(a.OnLocation)
		b.OnListen(func() {
			go func() {
				if _, _, err := a.Dictate(ctx); err != nil {
					log.Debug("Device dictation ended", "err", err)
				}
			}()
		})
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr)
	}

	go func() {
		if err := ipc.Serve(ctx, cfg.Socket, a.Control); err != nil {
			log.Error("Control socket failed", "path", cfg.Socket, "err", err)
		}
	}()

	if !engine.Available() {
		log.Warn("Speech recognition unavailable, voice commands disabled")
	}

	a.Start()
	log.Info("Boot up - successful")

	<-ctx.Done()
	log.Info("Shutting down")
}

func openPlatform(ctx context.Context, cfg *config.Config) (*platform, error) {
	switch cfg.Platform {
	case config.PlatformBridge:
		b, err := bridge.Dial(ctx, cfg.BridgeURL)
		if err != nil {
			return nil, err
		}
		p := &platform{rec: b.Recognizer(), synth: b.Synthesizer(), vib: b.Vibrator(), bridge: b}
		caps := b.Capabilities()
		if !caps.Speech {
			p.synth = local.Console{}
		}
		if !caps.Vibration {
			p.vib = local.Console{}
		}
		return p, nil

	case config.PlatformReplay:
		w, err := local.NewWhisper(cfg.WhisperModel, local.WhisperLang(cfg.Lang))
		if err != nil {
			return nil, fmt.Errorf("whisper: %w", err)
		}
		src := local.NewReplay(cfg.Replay, 2*time.Second)
		return &platform{
			rec:     local.NewRecognizer(src, w),
			synth:   local.Console{},
			vib:     local.Console{},
			closers: []io.Closer{w},
		}, nil

	default:
		return openLocal(cfg)
	}
}

func openLocal(cfg *config.Config) (*platform, error) {
	p := &platform{}

	mic, err := local.OpenMicrophone(local.DefaultVAD())
	if err != nil {
		return nil, fmt.Errorf("audio: %w", err)
	}
	p.closers = append(p.closers, mic)

	w, err := local.NewWhisper(cfg.WhisperModel, local.WhisperLang(cfg.Lang))
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("whisper: %w", err)
	}
	p.closers = append(p.closers, w)

	tts, err := local.NewEspeak(local.WhisperLang(cfg.Lang))
	if err != nil {
		log.Warn("espeak unavailable, speaking to the log", "err", err)
		p.synth = local.Console{}
	} else {
		p.synth = tts
		p.closers = append(p.closers, tts)
	}

	var opts []local.RecognizerOption
	buzz, err := local.NewBuzzer("")
	if err != nil {
		log.Warn("Audio output unavailable, vibrating to the log", "err", err)
		p.vib = local.Console{}
	} else {
		p.vib = buzz
		opts = append(opts, local.WithCue(buzz.Cue))
	}
	if cfg.Duck {
		opts = append(opts, local.WithAttenuator(local.NewDucker(local.DefaultDuckConfig())))
	}

	p.rec = local.NewRecognizer(mic, w, opts...)

	return p, nil
}

func openCollaborators(ctx context.Context, cfg *config.Config) (assist.Vision, assist.Assistant, error) {
	client, err := proxy.NewClient(cfg.Proxy)
	if err != nil {
		return nil, nil, fmt.Errorf("socks proxy %s: %w", cfg.Proxy, err)
	}

	var (
		vision    assist.Vision
		assistant assist.Assistant
	)

	if cfg.GeminiAPIKey != "" {
		g, err := assist.NewGemini(ctx, assist.GeminiConfig{
			APIKey:         cfg.GeminiAPIKey,
			VisionModel:    cfg.VisionModel,
			AssistantModel: cfg.AssistantModel,
			HTTPClient:     client,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("gemini: %w", err)
		}
		vision, assistant = g, g
	} else {
		log.Warn("GEMINI_API_KEY not set, obstacle detection disabled")
	}

	if cfg.Assistant == "openai" {
		if cfg.OpenAIAPIKey == "" {
			return nil, nil, errors.New("OPENAI_API_KEY not set")
		}
		o, err := assist.NewOpenAI(cfg.OpenAIAPIKey, cfg.AssistantModel, client)
		if err != nil {
			return nil, nil, fmt.Errorf("openai: %w", err)
		}
		assistant = o
	}

	if assistant == nil {
		log.Warn("No assistant configured, chat and directions disabled")
	}

	return vision, assistant, nil
}

func serveMetrics(ctx context.Context, addr string) {
	srv := &http.Server{Addr: addr, Handler: metrics.Handler()}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	log.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Metrics server failed", "addr", addr, "err", err)
	}
}
