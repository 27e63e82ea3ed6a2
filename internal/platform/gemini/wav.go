package gemini

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
)

// Gemini TTS returns signed 16-bit little-endian mono PCM at 24kHz.
const (
	wavSampleRate    = 24000
	wavChannels      = 1
	wavBitsPerSample = 16
)

// writeWAV writes pcm to path with a canonical 44-byte RIFF header.
func writeWAV(path string, pcm []byte) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create audio file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close audio file: %w", cerr)
		}
	}()

	w := bufio.NewWriter(f)
	blockAlign := wavChannels * wavBitsPerSample / 8
	header := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		uint32(36 + len(pcm)),
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16),
		uint16(1), // PCM
		uint16(wavChannels),
		uint32(wavSampleRate),
		uint32(wavSampleRate * blockAlign),
		uint16(blockAlign),
		uint16(wavBitsPerSample),
		[4]byte{'d', 'a', 't', 'a'},
		uint32(len(pcm)),
	}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("failed to write wav header: %w", err)
		}
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("failed to write audio data: %w", err)
	}
	return w.Flush()
}
