package sensor

import "math"

// MaxReflectance is the scale every scene is rescaled to before masking and
// scoring: a reflectance of 1.0 becomes 100.
const MaxReflectance = 100.0

// ApplyGainOffset converts a raw digital number to reflectance scaled to
// maxRef.
func ApplyGainOffset(raw float64, d Descriptor, maxRef float64) float64 {
	return (raw*d.gain + d.offset) * maxRef
}

// RawFromReflectance inverts ApplyGainOffset.
func RawFromReflectance(ref float64, d Descriptor, maxRef float64) float64 {
	return (ref/maxRef - d.offset) / d.gain
}

// DefaultCloudCeiling is the scene cloud percentage ceiling used when a run
// does not set one. Sentinel-2 gets stricter toward the poles where
// revisit is dense enough to afford it.
func DefaultCloudCeiling(code Code, lat float64) float64 {
	switch code {
	case S2A, S2B:
		lat = math.Abs(lat)
		switch {
		case lat < 50:
			return 90
		case lat < 60:
			return 80
		default:
			return 60
		}
	case L8, L9:
		return 90
	case L5, L7:
		return 50
	case HLS:
		return 80
	}
	return 90
}
