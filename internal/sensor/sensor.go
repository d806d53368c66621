// Package sensor describes the optical sensors the compositor understands and
// maps logical band names to the physical names used by each catalog.
package sensor

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownSensor = errors.New("unknown sensor")
	ErrUnknownBand   = errors.New("band not provided by sensor")
)

// Code identifies a sensor. The numeric value is the one written to the
// ssr_code band of a mosaic, so it must fit in a uint8 and never be zero.
type Code uint8

const (
	L5  Code = 5
	L7  Code = 7
	L8  Code = 8
	L9  Code = 9
	S2A Code = 21
	S2B Code = 22
	HLS Code = 30
	MOD Code = 40
)

var codeNames = map[Code]string{
	L5:  "L5",
	L7:  "L7",
	L8:  "L8",
	L9:  "L9",
	S2A: "S2A",
	S2B: "S2B",
	HLS: "HLS",
	MOD: "MOD",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", uint8(c))
}

// ParseCode accepts the short sensor names used in run configurations.
// "S2" names the Sentinel-2 pair and resolves to S2A; the selector merges
// S2B in.
func ParseCode(s string) (Code, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "S2" {
		return S2A, nil
	}
	for code, name := range codeNames {
		if name == s {
			return code, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSensor, s)
}

// Unit is the radiometric calibration level of a product.
type Unit int

const (
	TOA Unit = iota
	SR
)

func (u Unit) String() string {
	if u == SR {
		return "SR"
	}
	return "TOA"
}

func ParseUnit(s string) (Unit, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TOA":
		return TOA, nil
	case "SR":
		return SR, nil
	}
	return 0, fmt.Errorf("unknown unit %q", s)
}

// Family groups sensors sharing a band naming convention and QA layout.
type Family int

const (
	Landsat Family = iota
	Sentinel2
	HarmonizedLS
	MODIS
)

func (f Family) String() string {
	switch f {
	case Landsat:
		return "landsat"
	case Sentinel2:
		return "sentinel2"
	case HarmonizedLS:
		return "hls"
	case MODIS:
		return "modis"
	}
	return "unknown"
}

// Band is a logical band name shared by every sensor.
type Band string

const (
	BLU Band = "BLU"
	GRN Band = "GRN"
	RED Band = "RED"
	NIR Band = "NIR"
	SW1 Band = "SW1"
	SW2 Band = "SW2"

	AER  Band = "AER"  // coastal aerosol
	RE1  Band = "RE1"  // red edge 1 (S2 B5)
	RE2  Band = "RE2"  // red edge 2 (S2 B6)
	RE3  Band = "RE3"  // red edge 3 (S2 B7)
	NIRN Band = "NIRN" // narrow NIR (S2 B8A)

	QA     Band = "QA"     // vendor bit-packed quality band
	SCL    Band = "SCL"    // S2 scene classification
	RADSAT Band = "RADSAT" // Landsat radiometric saturation
)

// SixBands is the canonical vocabulary used when mosaics from different
// families are merged.
var SixBands = []Band{BLU, GRN, RED, NIR, SW1, SW2}

// Role selects one of the ordered band lists of a descriptor.
type Role int

const (
	RoleAll Role = iota
	RoleOut
	RoleSix
	RoleNoAerosol
	RoleRGB
)

// Angles names the scene properties holding mean sun/view geometry.
// Landsat only publishes sun elevation, so SunElevation marks that the
// zenith must be derived as 90 - elevation and view angles reuse sun angles.
type Angles struct {
	SunZenith    string
	SunAzimuth   string
	ViewZenith   string
	ViewAzimuth  string
	SunElevation bool
}
