// Package audioconv decodes audio files into the 16 kHz mono float PCM
// the local recognizer feeds to whisper.
package audioconv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

// SampleRate is the output rate of every decoder.
const SampleRate = 16000

var ErrUnsupported = errors.New("audioconv: unsupported format")

type Options struct {
	// MaxDuration truncates the output. Zero keeps everything.
	MaxDuration time.Duration
}

func (o Options) limit(x []float32) []float32 {
	if o.MaxDuration <= 0 {
		return x
	}
	n := int(o.MaxDuration.Seconds() * SampleRate)
	if len(x) > n {
		return x[:n]
	}
	return x
}

// clip is decoded audio before normalization.
type clip struct {
	samples  []float32
	channels int
	rate     int
}

func (c clip) mono16k() []float32 {
	x := downmix(c.samples, c.channels)
	return resample(x, c.rate, SampleRate)
}

type decoder func(r io.ReadSeeker) (clip, error)

var byExt = map[string][]decoder{
	".wav":  {decodeWAV},
	".mp3":  {decodeMP3},
	".ogg":  {decodeVorbis, decodeOpus},
	".oga":  {decodeVorbis, decodeOpus},
	".opus": {decodeOpus},
}

var byMagic = map[string][]decoder{
	"RIFF":    {decodeWAV},
	"OggS":    {decodeVorbis, decodeOpus},
	"ID3\x03": {decodeMP3},
	"ID3\x04": {decodeMP3},
}

// DecodeFile picks decoders by extension, falling back to the file's magic
// bytes, and returns 16 kHz mono samples in [-1, 1].
func DecodeFile(ctx context.Context, path string, opt Options) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoders, ok := byExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		magic, _ := bufio.NewReader(f).Peek(4)
		decoders, ok = byMagic[string(magic)]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupported, path)
		}
	}

	var errs []error
	for _, dec := range decoders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		c, err := dec(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return opt.limit(c.mono16k()), nil
	}

	return nil, fmt.Errorf("decode %s: %w", path, errors.Join(errs...))
}

func decodeWAV(r io.ReadSeeker) (clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return clip{}, errors.New("invalid wav")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return clip{}, err
	}
	if buf == nil || len(buf.Data) == 0 {
		return clip{}, errors.New("empty wav")
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}

	c := clip{samples: ints(buf.Data, depth), channels: 1, rate: 44100}
	if buf.Format != nil {
		if buf.Format.NumChannels > 0 {
			c.channels = buf.Format.NumChannels
		}
		if buf.Format.SampleRate > 0 {
			c.rate = buf.Format.SampleRate
		}
	}
	return c, nil
}

// decodeMP3 relies on go-mp3 always producing 16-bit stereo.
func decodeMP3(r io.ReadSeeker) (clip, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return clip{}, err
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return clip{}, err
	}

	pcm := make([]int16, len(raw)/2)
	if err := binary.Read(bytes.NewReader(raw[:len(pcm)*2]), binary.LittleEndian, pcm); err != nil {
		return clip{}, err
	}

	rate := dec.SampleRate()
	if rate <= 0 {
		rate = 44100
	}
	return clip{samples: int16s(pcm), channels: 2, rate: rate}, nil
}

func decodeVorbis(r io.ReadSeeker) (clip, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return clip{}, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return clip{}, errors.New("invalid ogg/vorbis stream")
	}
	return clip{samples: pcm, channels: format.Channels, rate: format.SampleRate}, nil
}

// decodeOpus reads 48 kHz interleaved int16 frames.
func decodeOpus(r io.ReadSeeker) (clip, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return clip{}, err
	}
	defer dec.Destroy()

	channels := dec.ChannelCount()
	if channels <= 0 {
		channels = 1
	}

	var samples []float32
	buf := make([]int16, 24000*channels)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			samples = append(samples, int16s(buf[:n*channels])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return clip{}, err
		}
	}
	if len(samples) == 0 {
		return clip{}, errors.New("empty opus stream")
	}

	return clip{samples: samples, channels: channels, rate: 48000}, nil
}
