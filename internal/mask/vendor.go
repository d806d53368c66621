package mask

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/forest-guardian/leaf-mosaic/internal/raster"
	"github.com/forest-guardian/leaf-mosaic/internal/scene"
	"github.com/forest-guardian/leaf-mosaic/internal/sensor"
)

// CloudScoreBand is the name of a linked per-pixel cloud score asset, 1 for
// clear and 0 for cloud.
const CloudScoreBand = "cs"

// CloudScoreThreshold is the score under which a pixel counts as cloudy.
const CloudScoreThreshold = 0.6

// Sentinel-2 QA60 and SCL.
const (
	s2OpaqueBit = 1 << 10
	s2CirrusBit = 1 << 11

	sclSaturated = 1
	sclShadow    = 3
	sclWater     = 6
	sclCloudMed  = 8
	sclCloudHigh = 9
	sclCirrus    = 10
	sclSnow      = 11
)

// Landsat Collection 2 QA_PIXEL.
const (
	landsatCloudBits = 0b11110 // dilated cloud, cirrus, cloud, shadow
	landsatSnowBit   = 1 << 5
	landsatWaterBit  = 1 << 7
)

// HLS Fmask.
const (
	hlsCloudBits = 0b1110 // cloud, adjacent, shadow
	hlsSnowBit   = 1 << 4
	hlsWaterBit  = 1 << 5
)

// MODIS state_1km.
const (
	modisShadowBit = 1 << 2
	modisSnowBit   = 1 << 15
)

// ClearMask marks the pixels the vendor QA flags as cloud, cirrus or shadow,
// plus pixels under the cloud score threshold when a score was linked.
func ClearMask(o scene.Observation) (PixelMask, error) {
	m := newMask(Clear, size(o))
	d := o.Scene.Descriptor

	qa, err := qaBand(o, sensor.QA)
	if err != nil {
		return PixelMask{}, err
	}
	scl, err := qaBand(o, sensor.SCL)
	if err != nil {
		return PixelMask{}, err
	}

	for i := range m.Bits {
		switch d.Family() {
		case sensor.Sentinel2:
			if qa != nil && qa[i]&(s2OpaqueBit|s2CirrusBit) != 0 {
				m.Bits[i] = true
			}
			if scl != nil {
				switch scl[i] {
				case sclShadow, sclCloudMed, sclCloudHigh, sclCirrus:
					m.Bits[i] = true
				}
			}
		case sensor.Landsat:
			m.Bits[i] = qa != nil && qa[i]&landsatCloudBits != 0
		case sensor.HarmonizedLS:
			m.Bits[i] = qa != nil && qa[i]&hlsCloudBits != 0
		case sensor.MODIS:
			if qa != nil {
				state := qa[i] & 0b11
				cirrus := (qa[i] >> 8) & 0b11
				m.Bits[i] = state == 1 || state == 2 || qa[i]&modisShadowBit != 0 || cirrus != 0
			}
		}
	}

	if o.Image.Has(CloudScoreBand) {
		cs, err := o.Image.Band(CloudScoreBand)
		if err != nil {
			return PixelMask{}, err
		}
		for i, v := range cs {
			if v < CloudScoreThreshold {
				m.Bits[i] = true
			}
		}
	}
	return m, nil
}

// SaturationMask marks radiometrically saturated pixels. Sentinel-2 uses
// SCL; Landsat uses the QA_RADSAT bits of the output bands. Other families
// carry no saturation flag.
func SaturationMask(o scene.Observation) (PixelMask, error) {
	m := newMask(Saturation, size(o))
	d := o.Scene.Descriptor

	switch d.Family() {
	case sensor.Sentinel2:
		scl, err := qaBand(o, sensor.SCL)
		if err != nil || scl == nil {
			return m, err
		}
		for i, v := range scl {
			m.Bits[i] = v == sclSaturated
		}
	case sensor.Landsat:
		radsat, err := qaBand(o, sensor.RADSAT)
		if err != nil || radsat == nil {
			return m, err
		}
		bits := radsatBits(d)
		for i, v := range radsat {
			m.Bits[i] = v&bits != 0
		}
	}
	return m, nil
}

// radsatBits is the QA_RADSAT bit set of the output bands: band n is bit
// n-1.
func radsatBits(d sensor.Descriptor) uint32 {
	var bits uint32
	for _, name := range d.Bands(sensor.RoleOut) {
		digits := strings.TrimLeftFunc(name, func(r rune) bool { return !unicode.IsDigit(r) })
		n, err := strconv.Atoi(digits)
		if err != nil || n < 1 {
			continue
		}
		bits |= 1 << (n - 1)
	}
	return bits
}

// WaterMask unions the vendor water flag with three NDWI tests against the
// reflectance scale.
func WaterMask(o scene.Observation, maxRef float64) (PixelMask, error) {
	b, err := sixBands(o)
	if err != nil {
		return PixelMask{}, err
	}
	m, err := vendorFlag(o, Water, sclWater, landsatWaterBit, hlsWaterBit, 0)
	if err != nil {
		return PixelMask{}, err
	}
	ndwi := raster.NormalizedDifference(b.grn, b.sw1)
	for i := range m.Bits {
		swMean := (b.sw1[i] + b.sw2[i]) / 2
		if (swMean < 0.02*maxRef && ndwi[i] > 0.3) ||
			(b.nir[i] < 0.15*maxRef && ndwi[i] > 0.3) ||
			(b.nir[i] < 0.10*maxRef && ndwi[i] > 0.2) {
			m.Bits[i] = true
		}
	}
	return m, nil
}

// SnowMask is NDSI > 0.2 with bright green, unioned with the vendor flag.
func SnowMask(o scene.Observation, maxRef float64) (PixelMask, error) {
	b, err := sixBands(o)
	if err != nil {
		return PixelMask{}, err
	}
	m, err := vendorFlag(o, Snow, sclSnow, landsatSnowBit, hlsSnowBit, modisSnowBit)
	if err != nil {
		return PixelMask{}, err
	}
	ndsi := raster.NormalizedDifference(b.grn, b.sw1)
	for i := range m.Bits {
		if ndsi[i] > 0.2 && b.grn[i] > 0.1*maxRef {
			m.Bits[i] = true
		}
	}
	return m, nil
}

// vendorFlag reads a single class or bit from the family's QA layout. A
// zero bit means the family has no such flag.
func vendorFlag(o scene.Observation, kind Kind, sclClass, landsatBit, hlsBit, modisBit uint32) (PixelMask, error) {
	m := newMask(kind, size(o))
	d := o.Scene.Descriptor

	if d.Family() == sensor.Sentinel2 {
		scl, err := qaBand(o, sensor.SCL)
		if err != nil || scl == nil {
			return m, err
		}
		for i, v := range scl {
			m.Bits[i] = v == sclClass
		}
		return m, nil
	}

	var bit uint32
	switch d.Family() {
	case sensor.Landsat:
		bit = landsatBit
	case sensor.HarmonizedLS:
		bit = hlsBit
	case sensor.MODIS:
		bit = modisBit
	}
	if bit == 0 {
		return m, nil
	}
	qa, err := qaBand(o, sensor.QA)
	if err != nil || qa == nil {
		return m, err
	}
	for i, v := range qa {
		m.Bits[i] = v&bit != 0
	}
	return m, nil
}
