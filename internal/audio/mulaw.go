package audio

import (
	"github.com/zaf/g711"
)

// Telephony media arrives as 8kHz mono G.711 mu-law, one byte per sample.
const (
	NarrowbandRate = 8000
	WidebandRate   = 16000
)

// The two mu-law codepoints an encoder emits for digital silence
// (0xFF is +0, 0x7F is -0).
func isQuietByte(b byte) bool {
	return b == 0xFF || b == 0x7F
}

// ActivityRatio returns the fraction of bytes in the frame that are not
// mu-law silence codepoints. An empty frame has zero activity.
func ActivityRatio(frame []byte) float64 {
	if len(frame) == 0 {
		return 0
	}
	active := 0
	for _, b := range frame {
		if !isQuietByte(b) {
			active++
		}
	}
	return float64(active) / float64(len(frame))
}

// IsLikelySilence reports whether at least 90% of the buffer is made of
// mu-law silence codepoints. Used as a cheap preflight before spending a
// transcription call on an utterance.
func IsLikelySilence(buf []byte) bool {
	if len(buf) == 0 {
		return true
	}
	quiet := 0
	for _, b := range buf {
		if isQuietByte(b) {
			quiet++
		}
	}
	return float64(quiet)/float64(len(buf)) >= 0.90
}

// DecodeUlaw expands mu-law bytes to 16-bit little-endian LPCM.
func DecodeUlaw(in []byte) []byte {
	return g711.DecodeUlaw(in)
}

// EncodeUlaw compresses 16-bit little-endian LPCM to mu-law bytes.
// A trailing odd byte is ignored.
func EncodeUlaw(lpcm []byte) []byte {
	if len(lpcm)%2 != 0 {
		lpcm = lpcm[:len(lpcm)-1]
	}
	return g711.EncodeUlaw(lpcm)
}

// Upsample8kTo16k doubles the sample rate of 16-bit LE mono PCM by linear
// interpolation. Whisper-style transcription endpoints want 16kHz input.
func Upsample8kTo16k(pcm []byte) []byte {
	n := len(pcm) / 2
	if n == 0 {
		return nil
	}
	out := make([]byte, 0, n*4)
	prev := int16(uint16(pcm[0]) | uint16(pcm[1])<<8)
	for i := 0; i < n; i++ {
		cur := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		mid := int16((int32(prev) + int32(cur)) / 2)
		out = append(out, byte(uint16(mid)), byte(uint16(mid)>>8))
		out = append(out, byte(uint16(cur)), byte(uint16(cur)>>8))
		prev = cur
	}
	return out
}
