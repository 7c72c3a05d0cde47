package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	DefaultSampleRate = 16000

	pcmFormat     = 1
	monoChannels  = 1
	bitsPerSample = 16
	bytesPerFrame = monoChannels * bitsPerSample / 8
)

var errNotWAV = errors.New("audio: not a RIFF/WAVE stream")

// wavHeader is the canonical 44-byte header for PCM16LE mono.
type wavHeader struct {
	Riff          [4]byte
	RiffSize      uint32
	Wave          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

func newWAVHeader(dataSize, sampleRate int) wavHeader {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return wavHeader{
		Riff:          [4]byte{'R', 'I', 'F', 'F'},
		RiffSize:      uint32(36 + dataSize),
		Wave:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   pcmFormat,
		Channels:      monoChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * bytesPerFrame),
		BlockAlign:    bytesPerFrame,
		BitsPerSample: bitsPerSample,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(dataSize),
	}
}

// EncodeWAV wraps raw PCM16LE mono samples in a WAV container.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	_ = WriteWAV(&buf, pcm, sampleRate)
	return buf.Bytes()
}

// WriteWAV writes pcm to out as a WAV stream.
func WriteWAV(out io.Writer, pcm []byte, sampleRate int) error {
	h := newWAVHeader(len(pcm), sampleRate)
	if err := binary.Write(out, binary.LittleEndian, h); err != nil {
		return err
	}
	_, err := out.Write(pcm)
	return err
}

// PCMFromWAV returns the sample data and rate of a PCM16LE mono WAV stream.
// Chunks other than fmt and data are skipped.
func PCMFromWAV(r io.Reader) ([]byte, int, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, 0, errNotWAV
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, 0, errNotWAV
	}

	sampleRate := 0
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return nil, 0, fmt.Errorf("audio: data chunk not found: %w", err)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))
		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, 0, err
			}
			if len(body) < 16 {
				return nil, 0, errors.New("audio: short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			channels := binary.LittleEndian.Uint16(body[2:4])
			bits := binary.LittleEndian.Uint16(body[14:16])
			if format != pcmFormat || channels != monoChannels || bits != bitsPerSample {
				return nil, 0, fmt.Errorf("audio: unsupported wav (format=%d channels=%d bits=%d)", format, channels, bits)
			}
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
		case "data":
			if sampleRate == 0 {
				return nil, 0, errors.New("audio: data chunk before fmt")
			}
			pcm, err := io.ReadAll(io.LimitReader(r, size))
			if err != nil {
				return nil, 0, err
			}
			return pcm, sampleRate, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return nil, 0, err
			}
		}
	}
}

// PCMDuration reports how long pcm plays at sampleRate.
func PCMDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n/bytesPerFrame) * time.Second / time.Duration(sampleRate)
}
