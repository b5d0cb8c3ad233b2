package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 decodes MP3 data and normalizes it to the engine format
// (mono 16-bit 44100 Hz).
func DecodeMP3(data []byte) ([]byte, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("mp3 read: %w", err)
	}

	// go-mp3 always yields 16-bit stereo at the stream's native rate.
	mono := DownmixStereo(raw)
	if dec.SampleRate() != SampleRate {
		mono = Resample(mono, dec.SampleRate(), SampleRate)
	}
	return mono, nil
}

// DownmixStereo averages interleaved 16-bit stereo frames into mono.
func DownmixStereo(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		l := int16(binary.LittleEndian.Uint16(pcm[i*4:]))
		r := int16(binary.LittleEndian.Uint16(pcm[i*4+2:]))
		m := int16((int32(l) + int32(r)) / 2)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(m))
	}
	return out
}

// Resample converts mono 16-bit PCM between sample rates using linear
// interpolation.
func Resample(pcm []byte, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 {
		return pcm
	}
	in := len(pcm) / 2
	if in == 0 {
		return nil
	}
	out := int(int64(in) * int64(to) / int64(from))
	if out == 0 {
		return nil
	}
	res := make([]byte, out*2)
	for i := 0; i < out; i++ {
		pos := float64(i) * float64(from) / float64(to)
		j := int(pos)
		frac := pos - float64(j)
		a := sampleAt(pcm, j, in)
		b := sampleAt(pcm, j+1, in)
		v := int16(float64(a)*(1-frac) + float64(b)*frac)
		binary.LittleEndian.PutUint16(res[i*2:], uint16(v))
	}
	return res
}

func sampleAt(pcm []byte, i, n int) int16 {
	if i >= n {
		i = n - 1
	}
	return int16(binary.LittleEndian.Uint16(pcm[i*2:]))
}

// Stretch applies a playback-rate multiplier to mono 16-bit PCM by
// resampling: rate 2.0 halves the play time. Pitch shifts with rate; the
// narration voices tolerate the usual 0.5 to 2.0 range.
func Stretch(pcm []byte, rate float64) []byte {
	if rate <= 0 || rate == 1.0 {
		return pcm
	}
	// Speeding up by rate is resampling from SampleRate*rate down to SampleRate.
	return Resample(pcm, int(float64(SampleRate)*rate), SampleRate)
}

// wav header handling for on-device synthesis output.

var errBadWAV = errors.New("audio: malformed wav data")

// DecodeWAV extracts and normalizes PCM from a 16-bit PCM WAV stream.
func DecodeWAV(data []byte) ([]byte, error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, errBadWAV
	}

	var (
		channels   int
		sampleRate int
		bitDepth   int
		pcm        []byte
	)

	// Walk the chunk list; some encoders emit extra chunks before "data".
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, errBadWAV
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			bitDepth = int(binary.LittleEndian.Uint16(data[body+14:]))
		case "data":
			pcm = data[body : body+size]
		}
		off = body + size
		if size%2 == 1 {
			off++ // chunks are word-aligned
		}
	}

	if pcm == nil || sampleRate == 0 {
		return nil, errBadWAV
	}
	if bitDepth != 16 {
		return nil, fmt.Errorf("audio: unsupported wav bit depth %d", bitDepth)
	}

	switch channels {
	case 1:
	case 2:
		pcm = DownmixStereo(pcm)
	default:
		return nil, fmt.Errorf("audio: unsupported wav channel count %d", channels)
	}

	if sampleRate != SampleRate {
		pcm = Resample(pcm, sampleRate, SampleRate)
	}
	return pcm, nil
}
