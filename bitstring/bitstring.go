// Package bitstring emits the MSB-first text expansion of extractor output
// (C11): one ASCII '0'/'1' character per bit, exactly output_bits of them.
package bitstring

import (
	"os"
	"strings"
)

// flushThreshold batches characters before writing, mirroring the teacher's
// buffered-write pattern rather than writing one byte at a time.
const flushThreshold = 8192

// Render returns the MSB-first bit expansion of outputBytes, truncated to
// exactly outputBits characters.
func Render(outputBytes []byte, outputBits int) string {
	var sb strings.Builder
	sb.Grow(outputBits)
	written := 0
	for _, b := range outputBytes {
		for bit := 7; bit >= 0 && written < outputBits; bit-- {
			if (b>>uint(bit))&1 == 1 {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
			written++
		}
		if written >= outputBits {
			break
		}
	}
	return sb.String()
}

// EmitFile writes the MSB-first bit expansion of outputBytes to path,
// truncated to exactly outputBits characters. The emitter is idempotent:
// if path already exists and holds at least outputBits characters, it is
// left untouched.
func EmitFile(path string, outputBytes []byte, outputBits int) error {
	if info, err := os.Stat(path); err == nil {
		if info.Size() >= int64(outputBits) {
			return nil
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var buf strings.Builder
	buf.Grow(flushThreshold)
	written := 0
	for _, b := range outputBytes {
		for bit := 7; bit >= 0 && written < outputBits; bit-- {
			if (b>>uint(bit))&1 == 1 {
				buf.WriteByte('1')
			} else {
				buf.WriteByte('0')
			}
			written++
			if buf.Len() >= flushThreshold {
				if _, err := f.WriteString(buf.String()); err != nil {
					return err
				}
				buf.Reset()
			}
		}
		if written >= outputBits {
			break
		}
	}
	if buf.Len() > 0 {
		if _, err := f.WriteString(buf.String()); err != nil {
			return err
		}
	}
	return nil
}
