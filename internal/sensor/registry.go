package sensor

import (
	"fmt"
	"sort"
	"strings"
)

// Registry holds every supported descriptor. It is built once and never
// mutated; pass it explicitly to the components that need it.
type Registry struct {
	descriptors map[string]Descriptor
}

// NewRegistry builds the registry from the static sensor table.
func NewRegistry() *Registry {
	r := &Registry{descriptors: make(map[string]Descriptor)}
	for _, d := range table() {
		if err := d.validate(); err != nil {
			panic(err)
		}
		r.descriptors[d.Key()] = d
	}
	return r
}

// Lookup returns the descriptor for a (sensor, unit) pair.
func (r *Registry) Lookup(code Code, unit Unit) (Descriptor, error) {
	d, ok := r.descriptors[code.String()+"_"+unit.String()]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s_%s", ErrUnknownSensor, code, unit)
	}
	return d, nil
}

// Parse resolves a configuration key such as "L8_SR" or "S2A_TOA".
func (r *Registry) Parse(key string) (Descriptor, error) {
	parts := strings.SplitN(strings.ToUpper(strings.TrimSpace(key)), "_", 2)
	if len(parts) != 2 {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownSensor, key)
	}
	code, err := ParseCode(parts[0])
	if err != nil {
		return Descriptor{}, err
	}
	unit, err := ParseUnit(parts[1])
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrUnknownSensor, err)
	}
	return r.Lookup(code, unit)
}

// ByCode returns the descriptor for a numeric ssr_code and unit.
func (r *Registry) ByCode(code uint8, unit Unit) (Descriptor, error) {
	return r.Lookup(Code(code), unit)
}

// All returns every descriptor ordered by key.
func (r *Registry) All() []Descriptor {
	keys := make([]string, 0, len(r.descriptors))
	for k := range r.descriptors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Descriptor, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.descriptors[k])
	}
	return out
}

const (
	landsatSRGain   = 0.0000275
	landsatSROffset = -0.2
	s2Gain          = 0.0001
)

var landsatAngles = Angles{
	SunZenith:    "SUN_ELEVATION",
	SunAzimuth:   "SUN_AZIMUTH",
	ViewZenith:   "SUN_ELEVATION",
	ViewAzimuth:  "SUN_AZIMUTH",
	SunElevation: true,
}

var s2Angles = Angles{
	SunZenith:   "MEAN_SOLAR_ZENITH_ANGLE",
	SunAzimuth:  "MEAN_SOLAR_AZIMUTH_ANGLE",
	ViewZenith:  "MEAN_INCIDENCE_ZENITH_ANGLE_B8A",
	ViewAzimuth: "MEAN_INCIDENCE_AZIMUTH_ANGLE_B8A",
}

func table() []Descriptor {
	var out []Descriptor

	// Landsat 8/9 OLI share band numbering.
	for _, l := range []struct {
		code   Code
		prefix string
	}{{L8, "LC08"}, {L9, "LC09"}} {
		sr := "LANDSAT/" + l.prefix + "/C02/T1_L2"
		toa := "LANDSAT/" + l.prefix + "/C02/T1_TOA"
		out = append(out,
			Descriptor{
				code: l.code, unit: SR, family: Landsat,
				gain: landsatSRGain, offset: landsatSROffset,
				bands: map[Band]string{
					AER: "SR_B1", BLU: "SR_B2", GRN: "SR_B3", RED: "SR_B4",
					NIR: "SR_B5", SW1: "SR_B6", SW2: "SR_B7",
					QA: "QA_PIXEL", RADSAT: "QA_RADSAT",
				},
				all:       []Band{AER, BLU, GRN, RED, NIR, SW1, SW2, QA, RADSAT},
				out:       []Band{BLU, GRN, RED, NIR, SW1, SW2},
				catalogID: sr, toaID: toa,
				cloudProp: "CLOUD_COVER", angles: landsatAngles, sigma: 16,
			},
			Descriptor{
				code: l.code, unit: TOA, family: Landsat,
				gain: 1, offset: 0,
				bands: map[Band]string{
					AER: "B1", BLU: "B2", GRN: "B3", RED: "B4",
					NIR: "B5", SW1: "B6", SW2: "B7",
					QA: "QA_PIXEL", RADSAT: "QA_RADSAT",
				},
				all:       []Band{AER, BLU, GRN, RED, NIR, SW1, SW2, QA, RADSAT},
				out:       []Band{BLU, GRN, RED, NIR, SW1, SW2},
				catalogID: toa,
				cloudProp: "CLOUD_COVER", angles: landsatAngles, sigma: 16,
			},
		)
	}

	// Landsat 5 TM / 7 ETM+ skip band 6 (thermal) in the reflective set.
	for _, l := range []struct {
		code   Code
		prefix string
	}{{L5, "LT05"}, {L7, "LE07"}} {
		sr := "LANDSAT/" + l.prefix + "/C02/T1_L2"
		toa := "LANDSAT/" + l.prefix + "/C02/T1_TOA"
		out = append(out,
			Descriptor{
				code: l.code, unit: SR, family: Landsat,
				gain: landsatSRGain, offset: landsatSROffset,
				bands: map[Band]string{
					BLU: "SR_B1", GRN: "SR_B2", RED: "SR_B3", NIR: "SR_B4",
					SW1: "SR_B5", SW2: "SR_B7",
					QA: "QA_PIXEL", RADSAT: "QA_RADSAT",
				},
				all:       []Band{BLU, GRN, RED, NIR, SW1, SW2, QA, RADSAT},
				out:       []Band{BLU, GRN, RED, NIR, SW1, SW2},
				catalogID: sr, toaID: toa,
				cloudProp: "CLOUD_COVER", angles: landsatAngles, sigma: 16,
			},
			Descriptor{
				code: l.code, unit: TOA, family: Landsat,
				gain: 1, offset: 0,
				bands: map[Band]string{
					BLU: "B1", GRN: "B2", RED: "B3", NIR: "B4",
					SW1: "B5", SW2: "B7",
					QA: "QA_PIXEL", RADSAT: "QA_RADSAT",
				},
				all:       []Band{BLU, GRN, RED, NIR, SW1, SW2, QA, RADSAT},
				out:       []Band{BLU, GRN, RED, NIR, SW1, SW2},
				catalogID: toa,
				cloudProp: "CLOUD_COVER", angles: landsatAngles, sigma: 16,
			},
		)
	}

	// Sentinel-2A and 2B share a catalog and are told apart by spacecraft.
	for _, s := range []struct {
		code  Code
		craft string
	}{{S2A, "Sentinel-2A"}, {S2B, "Sentinel-2B"}} {
		s2Bands := map[Band]string{
			AER: "B1", BLU: "B2", GRN: "B3", RED: "B4",
			RE1: "B5", RE2: "B6", RE3: "B7", NIR: "B8", NIRN: "B8A",
			SW1: "B11", SW2: "B12", QA: "QA60",
		}
		srBands := make(map[Band]string, len(s2Bands)+1)
		for k, v := range s2Bands {
			srBands[k] = v
		}
		srBands[SCL] = "SCL"
		out = append(out,
			Descriptor{
				code: s.code, unit: SR, family: Sentinel2,
				gain: s2Gain, offset: 0,
				bands:     srBands,
				all:       []Band{AER, BLU, GRN, RED, RE1, RE2, RE3, NIR, NIRN, SW1, SW2, QA, SCL},
				out:       []Band{BLU, GRN, RED, RE1, RE2, RE3, NIR, NIRN, SW1, SW2},
				catalogID: "COPERNICUS/S2_SR_HARMONIZED", toaID: "COPERNICUS/S2_HARMONIZED",
				cloudProp: "CLOUDY_PIXEL_PERCENTAGE", angles: s2Angles, sigma: 12,
				craftProp: "SPACECRAFT_NAME", craftName: s.craft,
			},
			Descriptor{
				code: s.code, unit: TOA, family: Sentinel2,
				gain: s2Gain, offset: 0,
				bands:     s2Bands,
				all:       []Band{AER, BLU, GRN, RED, RE1, RE2, RE3, NIR, NIRN, SW1, SW2, QA},
				out:       []Band{BLU, GRN, RED, RE1, RE2, RE3, NIR, NIRN, SW1, SW2},
				catalogID: "COPERNICUS/S2_HARMONIZED",
				cloudProp: "CLOUDY_PIXEL_PERCENTAGE", angles: s2Angles, sigma: 12,
				craftProp: "SPACECRAFT_NAME", craftName: s.craft,
			},
		)
	}

	out = append(out,
		Descriptor{
			code: HLS, unit: SR, family: HarmonizedLS,
			gain: s2Gain, offset: 0,
			bands: map[Band]string{
				AER: "B01", BLU: "B02", GRN: "B03", RED: "B04",
				NIR: "B8A", SW1: "B11", SW2: "B12", QA: "Fmask",
			},
			all:       []Band{AER, BLU, GRN, RED, NIR, SW1, SW2, QA},
			out:       []Band{BLU, GRN, RED, NIR, SW1, SW2},
			catalogID: "NASA/HLS/HLSS30/v002",
			cloudProp: "CLOUD_COVERAGE",
			angles: Angles{
				SunZenith:   "MEAN_SUN_ZENITH_ANGLE",
				SunAzimuth:  "MEAN_SUN_AZIMUTH_ANGLE",
				ViewZenith:  "MEAN_VIEW_ZENITH_ANGLE",
				ViewAzimuth: "MEAN_VIEW_AZIMUTH_ANGLE",
			},
			sigma: 12,
		},
		Descriptor{
			code: MOD, unit: SR, family: MODIS,
			gain: s2Gain, offset: 0,
			bands: map[Band]string{
				RED: "sur_refl_b01", NIR: "sur_refl_b02", BLU: "sur_refl_b03",
				GRN: "sur_refl_b04", SW1: "sur_refl_b06", SW2: "sur_refl_b07",
				QA: "state_1km",
			},
			all:       []Band{BLU, GRN, RED, NIR, SW1, SW2, QA},
			out:       []Band{BLU, GRN, RED, NIR, SW1, SW2},
			catalogID: "MODIS/061/MOD09GA",
			sigma:     8,
		},
	)
	return out
}
