package synth

import (
	"encoding/binary"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/bluehawana/carbot-js-ai-sub001/pkg/provider/tts"
)

// writeWAV writes 16-bit little-endian PCM audio to path as a RIFF/WAVE
// file. Used for the optional per-request file sink.
func writeWAV(path string, a tts.Audio) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("synth: create wav file: %w", err)
	}

	enc := wav.NewEncoder(f, a.SampleRate, 16, a.Channels, 1)

	samples := make([]int, len(a.PCM)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(a.PCM[2*i:])))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: a.Channels, SampleRate: a.SampleRate},
		SourceBitDepth: 16,
		Data:           samples,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("synth: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("synth: finalize wav: %w", err)
	}
	return f.Close()
}
