package audioinfo

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Compile-time interface check.
var _ Prober = (*WAVProber)(nil)

// WAVProber computes durations for RIFF/WAVE (PCM) files by walking the
// chunk list and dividing the data chunk length by the byte rate declared in
// the format chunk. It reads only chunk headers plus the 16-byte format
// block, so probing is cheap even for long recordings.
type WAVProber struct{}

// Duration implements [Prober].
func (WAVProber) Duration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("audioinfo: open %q: %w", path, err)
	}
	defer f.Close()

	var riff [12]byte
	if _, err := io.ReadFull(f, riff[:]); err != nil {
		return 0, fmt.Errorf("audioinfo: read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return 0, fmt.Errorf("audioinfo: %q is not a RIFF/WAVE file", path)
	}

	var (
		byteRate uint32
		dataLen  uint32
		haveFmt  bool
		haveData bool
	)

	// Walk chunks until both fmt and data have been seen.
	for !(haveFmt && haveData) {
		var hdr [8]byte
		if _, err := io.ReadFull(f, hdr[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return 0, fmt.Errorf("audioinfo: read chunk header: %w", err)
		}
		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		switch id {
		case "fmt ":
			var block [16]byte
			if _, err := io.ReadFull(f, block[:]); err != nil {
				return 0, fmt.Errorf("audioinfo: read fmt chunk: %w", err)
			}
			byteRate = binary.LittleEndian.Uint32(block[8:12])
			haveFmt = true
			if skip := int64(size) - 16; skip > 0 {
				if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
					return 0, fmt.Errorf("audioinfo: seek past fmt chunk: %w", err)
				}
			}
		case "data":
			dataLen = size
			haveData = true
			if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
				return 0, fmt.Errorf("audioinfo: seek past data chunk: %w", err)
			}
		default:
			// Chunks are word-aligned; odd sizes carry a pad byte.
			skip := int64(size)
			if size%2 == 1 {
				skip++
			}
			if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
				return 0, fmt.Errorf("audioinfo: seek past %q chunk: %w", id, err)
			}
		}
	}

	if !haveFmt || !haveData {
		return 0, fmt.Errorf("audioinfo: %q is missing fmt or data chunk", path)
	}
	if byteRate == 0 {
		return 0, fmt.Errorf("audioinfo: %q declares zero byte rate", path)
	}
	return float64(dataLen) / float64(byteRate), nil
}
