package sensor

import (
	"fmt"
	"slices"
)

// Descriptor is the immutable description of one (sensor, unit) product.
type Descriptor struct {
	code      Code
	unit      Unit
	family    Family
	gain      float64
	offset    float64
	bands     map[Band]string
	all       []Band
	out       []Band
	catalogID string
	toaID     string
	cloudProp string
	angles    Angles
	sigma     float64
	craftProp string
	craftName string
}

func (d Descriptor) Code() Code        { return d.code }
func (d Descriptor) Unit() Unit        { return d.unit }
func (d Descriptor) Family() Family    { return d.family }
func (d Descriptor) Gain() float64     { return d.gain }
func (d Descriptor) Offset() float64   { return d.offset }
func (d Descriptor) CatalogID() string { return d.catalogID }

// TOACatalogID is the sibling TOA collection used to link view/sun angles
// onto SR scenes. Empty when the descriptor is TOA or no sibling exists.
func (d Descriptor) TOACatalogID() string { return d.toaID }

func (d Descriptor) CloudProperty() string   { return d.cloudProp }
func (d Descriptor) AngleProperties() Angles { return d.angles }

// TimeSigma is the width, in days, of the temporal proximity term.
func (d Descriptor) TimeSigma() float64 { return d.sigma }

// Spacecraft returns the property/value pair distinguishing sensors that
// share one catalog (Sentinel-2A and 2B).
func (d Descriptor) Spacecraft() (string, string) { return d.craftProp, d.craftName }

// Key is the configuration name of the descriptor, e.g. "L8_SR".
func (d Descriptor) Key() string { return d.code.String() + "_" + d.unit.String() }

func (d Descriptor) String() string { return d.Key() }

// Band resolves a logical band to its physical name.
func (d Descriptor) Band(b Band) (string, error) {
	name, ok := d.bands[b]
	if !ok {
		return "", fmt.Errorf("%w: %s has no %s", ErrUnknownBand, d.Key(), b)
	}
	return name, nil
}

// Has reports whether the descriptor provides a logical band.
func (d Descriptor) Has(b Band) bool {
	_, ok := d.bands[b]
	return ok
}

// Logical is the reverse lookup of Band.
func (d Descriptor) Logical(physical string) (Band, bool) {
	for b, name := range d.bands {
		if name == physical {
			return b, true
		}
	}
	return "", false
}

// Bands returns the physical band names for a role, in order.
func (d Descriptor) Bands(role Role) []string {
	return d.physical(d.Logicals(role))
}

// Logicals returns the logical band names for a role, in order.
func (d Descriptor) Logicals(role Role) []Band {
	switch role {
	case RoleAll:
		return slices.Clone(d.all)
	case RoleOut:
		return slices.Clone(d.out)
	case RoleSix:
		return slices.Clone(SixBands)
	case RoleNoAerosol:
		var bands []Band
		for _, b := range d.all {
			if b != AER && isSpectral(b) {
				bands = append(bands, b)
			}
		}
		return bands
	case RoleRGB:
		return []Band{RED, GRN, BLU}
	}
	return nil
}

// Spectral returns the physical names of the reflectance bands, which are
// the only ones gain/offset rescaling applies to.
func (d Descriptor) Spectral() []string {
	var bands []Band
	for _, b := range d.all {
		if isSpectral(b) {
			bands = append(bands, b)
		}
	}
	return d.physical(bands)
}

func (d Descriptor) physical(bands []Band) []string {
	names := make([]string, 0, len(bands))
	for _, b := range bands {
		names = append(names, d.bands[b])
	}
	return names
}

func isSpectral(b Band) bool {
	return b != QA && b != SCL && b != RADSAT
}

// validate checks that every logical band resolves to exactly one physical
// band listed in all, and that out only names known bands.
func (d Descriptor) validate() error {
	seen := make(map[string]Band, len(d.bands))
	for b, name := range d.bands {
		if other, dup := seen[name]; dup {
			return fmt.Errorf("%s: physical band %s mapped twice (%s, %s)", d.Key(), name, other, b)
		}
		seen[name] = b
		if !slices.Contains(d.all, b) {
			return fmt.Errorf("%s: band %s missing from ALL_BANDS", d.Key(), b)
		}
	}
	for _, b := range d.all {
		if _, ok := d.bands[b]; !ok {
			return fmt.Errorf("%s: ALL_BANDS lists unmapped %s", d.Key(), b)
		}
	}
	for _, b := range append(slices.Clone(d.out), SixBands...) {
		if _, ok := d.bands[b]; !ok {
			return fmt.Errorf("%s: output band %s unmapped", d.Key(), b)
		}
	}
	if d.gain == 0 {
		return fmt.Errorf("%s: zero gain", d.Key())
	}
	return nil
}
