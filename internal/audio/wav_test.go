package audio

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func TestEncodeWAVHeader(t *testing.T) {
	wav := EncodeWAV([]byte{1, 2, 3, 4}, 0)
	if len(wav) != 48 {
		t.Fatalf("len = %d, want 48", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatalf("bad chunk ids: %q", wav[:40])
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != DefaultSampleRate {
		t.Fatalf("sample rate = %d, want default", rate)
	}
}

func TestPCMFromWAVSkipsUnknownChunks(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0))
	buf.WriteString("WAVE")
	buf.WriteString("LIST")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(3))
	buf.Write([]byte{'a', 'b', 'c', 0}) // odd chunk plus pad byte
	full := EncodeWAV([]byte{9, 0, 8, 0}, 22050)
	buf.Write(full[12:])

	pcm, rate, err := PCMFromWAV(&buf)
	if err != nil {
		t.Fatalf("PCMFromWAV() error = %v", err)
	}
	if rate != 22050 || !bytes.Equal(pcm, []byte{9, 0, 8, 0}) {
		t.Fatalf("got rate=%d pcm=%v", rate, pcm)
	}
}

func TestPCMFromWAVRejectsStereo(t *testing.T) {
	wav := EncodeWAV([]byte{0, 0, 0, 0}, 16000)
	binary.LittleEndian.PutUint16(wav[22:24], 2)
	if _, _, err := PCMFromWAV(bytes.NewReader(wav)); err == nil {
		t.Fatalf("stereo wav should be rejected")
	}
}

func TestFileMicrophoneAcceptsRawPCM(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "utterance.pcm")
	if err := os.WriteFile(raw, []byte{1, 0, 2, 0}, 0o600); err != nil {
		t.Fatal(err)
	}
	mic, err := NewFileMicrophone(raw)
	if err != nil {
		t.Fatalf("NewFileMicrophone() error = %v", err)
	}
	if mic.Rate != DefaultSampleRate || len(mic.PCM) != 4 {
		t.Fatalf("unexpected mic: rate=%d len=%d", mic.Rate, len(mic.PCM))
	}

	wavPath := filepath.Join(dir, "utterance.wav")
	if err := os.WriteFile(wavPath, EncodeWAV([]byte{1, 0}, 8000), 0o600); err != nil {
		t.Fatal(err)
	}
	mic, err = NewFileMicrophone(wavPath)
	if err != nil {
		t.Fatalf("NewFileMicrophone(wav) error = %v", err)
	}
	if mic.Rate != 8000 || len(mic.PCM) != 2 {
		t.Fatalf("unexpected wav mic: rate=%d len=%d", mic.Rate, len(mic.PCM))
	}
}
