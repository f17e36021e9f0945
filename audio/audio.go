package audio

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"
)

type Format int

const (
	FormatUnknown Format = iota
	FormatWAV
	FormatMP3
	FormatFLAC
	FormatOgg
)

func (f Format) String() string {
	switch f {
	case FormatWAV:
		return "wav"
	case FormatMP3:
		return "mp3"
	case FormatFLAC:
		return "flac"
	case FormatOgg:
		return "ogg"
	default:
		return "unknown"
	}
}

// Info describes a decoded audio container.
type Info struct {
	Container   Format
	SampleRate  int
	NumChannels int
	Duration    time.Duration
}

// DetectFormat sniffs the container type from the leading bytes.
func DetectFormat(data []byte) (Format, bool) {
	if len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")) {
		return FormatWAV, true
	}
	if len(data) >= 4 && bytes.Equal(data[0:4], []byte("fLaC")) {
		return FormatFLAC, true
	}
	if len(data) >= 4 && bytes.Equal(data[0:4], []byte("OggS")) {
		return FormatOgg, true
	}
	if len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")) {
		return FormatMP3, true
	}
	// bare mpeg audio frame sync
	if len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 {
		return FormatMP3, true
	}
	return FormatUnknown, false
}

// Decode opens data with the decoder matching its container.
func Decode(data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	f, ok := DetectFormat(data)
	if !ok {
		return nil, beep.Format{}, fmt.Errorf("unrecognized audio container")
	}
	rc := io.NopCloser(bytes.NewReader(data))
	switch f {
	case FormatWAV:
		return wav.Decode(rc)
	case FormatFLAC:
		return flac.Decode(rc)
	case FormatOgg:
		return vorbis.Decode(rc)
	case FormatMP3:
		return mp3.Decode(rc)
	}
	return nil, beep.Format{}, fmt.Errorf("unrecognized audio container")
}

// Probe identifies the container of data and decodes its headers. It fails
// on anything the decoders cannot open, so a passing probe means the bytes
// are real audio and not an upstream error blob.
func Probe(data []byte) (*Info, error) {
	f, _ := DetectFormat(data)
	streamer, format, err := Decode(data)
	if err != nil {
		return nil, err
	}
	defer streamer.Close()

	info := &Info{
		Container:   f,
		SampleRate:  int(format.SampleRate),
		NumChannels: format.NumChannels,
	}
	// not every decoder knows its length up front
	if n := streamer.Len(); n > 0 {
		info.Duration = format.SampleRate.D(n)
	}
	return info, nil
}
