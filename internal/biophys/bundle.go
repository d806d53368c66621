package biophys

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
)

var ErrUnknownProduct = errors.New("unknown biophysical product")

// Product is a biophysical variable.
type Product string

const (
	LAI    Product = "LAI"
	FAPAR  Product = "fAPAR"
	FCOVER Product = "fCOVER"
	Albedo Product = "Albedo"
)

var Products = []Product{LAI, FAPAR, FCOVER, Albedo}

func ParseProduct(s string) (Product, error) {
	for _, p := range Products {
		if strings.EqualFold(string(p), s) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProduct, s)
}

// Scale is the factor applied before packing the estimate into 8 bits.
func (p Product) Scale() float64 {
	if p == LAI {
		return 20
	}
	return 200
}

// Parent routes the pixels of one biome to a child ensemble.
type Parent struct {
	Biome int
	Tree  *DecisionTree
	// Regressors are the input band names, GENames the generic names the
	// trees split on, in the same order.
	Regressors    []string
	GENames       []string
	Scaling       []float64
	Offset        []float64
	DomainScaling []float64
	DomainOffset  []float64
}

// Bundle holds every parent and child model of one product.
type Bundle struct {
	Product  Product
	Parents  map[int]*Parent
	Children map[int]map[int]*Ensemble
}

// Child returns the ensemble for a biome and child code.
func (b *Bundle) Child(biome, code int) (*Ensemble, bool) {
	e, ok := b.Children[biome][code]
	return e, ok
}

// LoadBundleFiles reads <dir>/<product>_parent.geojson and
// <dir>/<product>_child.geojson.
func LoadBundleFiles(dir string, product Product) (*Bundle, error) {
	parent, err := os.ReadFile(filepath.Join(dir, string(product)+"_parent.geojson"))
	if err != nil {
		return nil, err
	}
	child, err := os.ReadFile(filepath.Join(dir, string(product)+"_child.geojson"))
	if err != nil {
		return nil, err
	}
	return LoadBundle(product, parent, child)
}

// LoadBundle decodes parent and child feature collections. Parent features
// carry biome, tree, regressors, regressorsGENames, regressorsGEScaling,
// regressorsGEOffset, domainScaling and domainOffset; child features carry
// biome, childName and tree.
func LoadBundle(product Product, parentJSON, childJSON []byte) (*Bundle, error) {
	b := &Bundle{Product: product, Parents: make(map[int]*Parent), Children: make(map[int]map[int]*Ensemble)}

	parents, err := geojson.UnmarshalFeatureCollection(parentJSON)
	if err != nil {
		return nil, fmt.Errorf("parent collection: %w", err)
	}
	for i, f := range parents.Features {
		p, err := parseParent(f.Properties)
		if err != nil {
			return nil, fmt.Errorf("parent feature %d: %w", i, err)
		}
		b.Parents[p.Biome] = p
	}

	children, err := geojson.UnmarshalFeatureCollection(childJSON)
	if err != nil {
		return nil, fmt.Errorf("child collection: %w", err)
	}
	for i, f := range children.Features {
		biome, err := intProp(f.Properties, "biome")
		if err != nil {
			return nil, fmt.Errorf("child feature %d: %w", i, err)
		}
		code, err := intProp(f.Properties, "childName")
		if err != nil {
			return nil, fmt.Errorf("child feature %d: %w", i, err)
		}
		tree, err := ParseTree(f.Properties.MustString("tree", ""))
		if err != nil {
			return nil, fmt.Errorf("child feature %d: %w", i, err)
		}
		if b.Children[biome] == nil {
			b.Children[biome] = make(map[int]*Ensemble)
		}
		e, ok := b.Children[biome][code]
		if !ok {
			e = &Ensemble{}
			b.Children[biome][code] = e
		}
		e.Trees = append(e.Trees, tree)
	}
	return b, nil
}

func parseParent(props geojson.Properties) (*Parent, error) {
	p := &Parent{}
	var err error
	if p.Biome, err = intProp(props, "biome"); err != nil {
		return nil, err
	}
	if p.Tree, err = ParseTree(props.MustString("tree", "")); err != nil {
		return nil, err
	}
	if p.Regressors, err = stringsProp(props, "regressors"); err != nil {
		return nil, err
	}
	if p.GENames, err = stringsProp(props, "regressorsGENames"); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		key string
		dst *[]float64
	}{
		{"regressorsGEScaling", &p.Scaling},
		{"regressorsGEOffset", &p.Offset},
		{"domainScaling", &p.DomainScaling},
		{"domainOffset", &p.DomainOffset},
	} {
		if *f.dst, err = floatsProp(props, f.key); err != nil {
			return nil, err
		}
	}

	n := len(p.Regressors)
	if len(p.GENames) != n || len(p.Scaling) != n || len(p.Offset) != n {
		return nil, fmt.Errorf("biome %d: %d regressors but %d names, %d scalings, %d offsets",
			p.Biome, n, len(p.GENames), len(p.Scaling), len(p.Offset))
	}
	if len(p.DomainScaling) != n || len(p.DomainOffset) != n {
		return nil, fmt.Errorf("biome %d: domain has %d scalings and %d offsets for %d regressors",
			p.Biome, len(p.DomainScaling), len(p.DomainOffset), n)
	}
	return p, nil
}

func intProp(props geojson.Properties, key string) (int, error) {
	switch v := props[key].(type) {
	case float64:
		return int(v), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(v))
	case nil:
		return 0, fmt.Errorf("missing property %s", key)
	}
	return 0, fmt.Errorf("property %s has type %T", key, props[key])
}

// list accepts a JSON array or a comma separated string, optionally
// bracketed.
func list(props geojson.Properties, key string) ([]string, error) {
	switch v := props[key].(type) {
	case []any:
		out := make([]string, len(v))
		for i, x := range v {
			out[i] = strings.TrimSpace(fmt.Sprint(x))
		}
		return out, nil
	case string:
		v = strings.Trim(strings.TrimSpace(v), "[]")
		if v == "" {
			return nil, nil
		}
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.Trim(strings.TrimSpace(parts[i]), `"'`)
		}
		return parts, nil
	case nil:
		return nil, fmt.Errorf("missing property %s", key)
	}
	return nil, fmt.Errorf("property %s has type %T", key, props[key])
}

func stringsProp(props geojson.Properties, key string) ([]string, error) {
	return list(props, key)
}

func floatsProp(props geojson.Properties, key string) ([]float64, error) {
	items, err := list(props, key)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(items))
	for i, s := range items {
		if out[i], err = strconv.ParseFloat(s, 64); err != nil {
			return nil, fmt.Errorf("property %s: %w", key, err)
		}
	}
	return out, nil
}
