package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Whisper transcribes 16 kHz mono PCM with a whisper.cpp model.
type Whisper struct {
	mu      sync.Mutex
	model   whisper.Model
	lang    string
	threads uint
}

// NewWhisper loads the model. lang is a whisper language code or "auto".
func NewWhisper(modelPath, lang string) (*Whisper, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if lang == "" {
		lang = "auto"
	}
	return &Whisper{model: m, lang: lang, threads: uint(runtime.NumCPU())}, nil
}

func (w *Whisper) Close() error {
	return w.model.Close()
}

func (w *Whisper) Transcribe(ctx context.Context, pcm []float32) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}

	// One context at a time keeps memory bounded on small machines.
	w.mu.Lock()
	defer w.mu.Unlock()

	wctx, err := w.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("new context: %w", err)
	}
	if err := wctx.SetLanguage(w.lang); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	wctx.SetThreads(w.threads)

	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process: %w", err)
	}

	var parts []string
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("next segment: %w", err)
		}
		if t := strings.TrimSpace(seg.Text); t != "" && !isNoiseMarker(t) {
			parts = append(parts, t)
		}
	}

	return strings.Join(parts, " "), nil
}

// isNoiseMarker drops whisper's bracketed non-speech annotations.
func isNoiseMarker(s string) bool {
	return (strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")) ||
		(strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"))
}

// WhisperLang maps a BCP 47 tag such as "en-US" to whisper's code.
func WhisperLang(tag string) string {
	if tag == "" {
		return "auto"
	}
	lang, _, _ := strings.Cut(tag, "-")
	return strings.ToLower(lang)
}
