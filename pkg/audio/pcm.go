package audio

// AudioThreshold is the minimum absolute sample amplitude (out of 32767)
// for a block to count as carrying audible signal. Used only for the
// "with audio" diagnostics counters, never for control flow.
const AudioThreshold = 100

// DownmixStereo averages interleaved L/R float32 pairs into mono.
// A trailing unpaired sample is averaged with silence.
func DownmixStereo(in []float32) []float32 {
	out := make([]float32, 0, (len(in)+1)/2)
	for i := 0; i < len(in); i += 2 {
		var r float32
		if i+1 < len(in) {
			r = in[i+1]
		}
		out = append(out, (in[i]+r)/2)
	}
	return out
}

// DecimationRatio returns the decimation step for converting nativeRate to
// targetRate: floor(native/target), never less than 1. There is no
// anti-aliasing filter anywhere in this pipeline; aliasing above the new
// Nyquist frequency is an accepted quality limitation.
func DecimationRatio(nativeRate, targetRate int) int {
	if targetRate <= 0 || nativeRate <= targetRate {
		return 1
	}
	return nativeRate / targetRate
}

// Decimate keeps every ratio-th sample, starting at index 0. For an input of
// length L it yields ceil(L/ratio) samples. A ratio below 1 is treated as 1.
func Decimate(in []float32, ratio int) []float32 {
	if ratio <= 1 {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	out := make([]float32, 0, (len(in)+ratio-1)/ratio)
	for i := 0; i < len(in); i += ratio {
		out = append(out, in[i])
	}
	return out
}

// Quantize converts float samples to 16-bit signed PCM: clamp to [-1, 1],
// scale by 32767, truncate toward zero. Both -1.0 and 1.0 map to ±32767,
// avoiding the asymmetric clip at -32768.
func Quantize(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		out[i] = int16(s * 32767)
	}
	return out
}

// Dequantize converts a 16-bit PCM sample back to float range by dividing
// by 32768.
func Dequantize(s int16) float32 {
	return float32(s) / 32768
}

// EncodeLE serializes int16 samples to little-endian byte pairs.
func EncodeLE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// DecodeLE parses little-endian byte pairs into int16 samples. A trailing
// odd byte is discarded; the wire format carries no framing, so length is
// the only structure a receiver can rely on.
func DecodeLE(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return out
}

// HasAudio reports whether any sample's magnitude exceeds [AudioThreshold].
func HasAudio(samples []int16) bool {
	for _, s := range samples {
		if s > AudioThreshold || s < -AudioThreshold {
			return true
		}
	}
	return false
}
