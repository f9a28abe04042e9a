package local

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

static int
odin_init(const char *voice)
{
	int rate = espeak_Initialize(AUDIO_OUTPUT_PLAYBACK, 200, NULL, 0);
	if (rate < 0)
	{ return rate; }
	if (voice && voice[0])
	{ espeak_SetVoiceByName(voice); }
	return rate;
}

static int
odin_say(const char *text, const char *voice, int rate, int volume)
{
	if (!text)
	{ return -1; }
	if (voice && voice[0])
	{ espeak_SetVoiceByName(voice); }
	espeak_SetParameter(espeakRATE, rate, 0);
	espeak_SetParameter(espeakVOLUME, volume, 0);
	return espeak_Synth(text, strlen(text) + 1, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL);
}

static int
odin_voice_count(void)
{
	const espeak_VOICE **v = espeak_ListVoices(NULL);
	int n = 0;
	while (v && v[n])
	{ n++; }
	return n;
}

static const char *
odin_voice_name(int i)
{
	return espeak_ListVoices(NULL)[i]->name;
}

// languages is a list of priority byte + NUL terminated name pairs.
static const char *
odin_voice_lang(int i)
{
	const char *l = espeak_ListVoices(NULL)[i]->languages;
	return l ? l + 1 : "";
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"odin/internal/speech"
)

const (
	espeakBaseRate   = 175 // words per minute at rate 1.0
	espeakBaseVolume = 100 // espeak's normal amplitude
)

// Espeak is an asynchronous espeak-ng synthesizer. Speech queues inside
// espeak and plays on its own thread.
type Espeak struct {
	mu     sync.Mutex
	voices []speech.Voice
}

// NewEspeak initializes the library once per process with the given
// default voice, e.g. "en-us".
func NewEspeak(voice string) (*Espeak, error) {
	cvoice := C.CString(voice)
	defer C.free(unsafe.Pointer(cvoice))

	if rc := C.odin_init(cvoice); rc < 0 {
		return nil, fmt.Errorf("espeak init failed: %d", int(rc))
	}

	e := &Espeak{}
	e.voices = e.list()

	return e, nil
}

func (e *Espeak) list() []speech.Voice {
	n := int(C.odin_voice_count())
	out := make([]speech.Voice, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, speech.Voice{
			Name: C.GoString(C.odin_voice_name(C.int(i))),
			Lang: C.GoString(C.odin_voice_lang(C.int(i))),
		})
	}
	return out
}

func (e *Espeak) Voices() []speech.Voice {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]speech.Voice(nil), e.voices...)
}

func (e *Espeak) Speak(u speech.Utterance) error {
	if u.Text == "" {
		return nil
	}

	ctext := C.CString(u.Text)
	defer C.free(unsafe.Pointer(ctext))

	var voice string
	if u.Voice != nil {
		voice = u.Voice.Name
	}
	cvoice := C.CString(voice)
	defer C.free(unsafe.Pointer(cvoice))

	rate := C.int(float64(espeakBaseRate) * u.Rate)
	volume := C.int(float64(espeakBaseVolume) * u.Volume)

	e.mu.Lock()
	rc := C.odin_say(ctext, cvoice, rate, volume)
	e.mu.Unlock()

	if rc != C.EE_OK {
		return fmt.Errorf("espeak synth failed: %d", int(rc))
	}
	return nil
}

func (e *Espeak) Cancel() {
	e.mu.Lock()
	C.espeak_Cancel()
	e.mu.Unlock()
}

func (e *Espeak) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	C.espeak_Synchronize()
	if rc := C.espeak_Terminate(); rc != C.EE_OK {
		return fmt.Errorf("espeak terminate failed: %d", int(rc))
	}
	return nil
}
