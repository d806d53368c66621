package stac

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/forest-guardian/leaf-mosaic/internal/catalog"
	"github.com/forest-guardian/leaf-mosaic/internal/scene"
)

func searchBody(q catalog.Query, limit int) map[string]any {
	body := map[string]any{
		"collections": []string{q.CatalogID},
		"limit":       limit,
	}
	if len(q.IDs) > 0 {
		body["ids"] = q.IDs
		return body
	}
	if len(q.Region) > 0 {
		b := q.Region.Bound()
		body["bbox"] = []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
	}
	if !q.Start.IsZero() {
		body["datetime"] = q.Start.UTC().Format(time.RFC3339) + "/" + q.End.UTC().Format(time.RFC3339)
	}
	query := map[string]any{}
	if q.CloudProperty != "" && q.MaxCloud > 0 {
		query[q.CloudProperty] = map[string]any{"lt": q.MaxCloud}
	}
	if q.Property != "" {
		query[q.Property] = map[string]any{"eq": q.Value}
	}
	if len(query) > 0 {
		body["query"] = query
	}
	return body
}

type link struct {
	Rel    string          `json:"rel"`
	Href   string          `json:"href"`
	Method string          `json:"method"`
	Body   json.RawMessage `json:"body"`
}

// envelope holds what geojson.FeatureCollection drops: assets and links.
type envelope struct {
	Features []struct {
		ID     string `json:"id"`
		Assets map[string]struct {
			Href string `json:"href"`
		} `json:"assets"`
	} `json:"features"`
	Links []link `json:"links"`
}

type next struct {
	URL    string
	Method string
	Body   []byte
}

type page struct {
	items []catalog.Item
	next  next
}

func parsePage(raw []byte) (page, error) {
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return page{}, fmt.Errorf("failed to decode feature collection: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return page{}, fmt.Errorf("failed to decode assets: %w", err)
	}

	var p page
	for i, f := range fc.Features {
		it := catalog.Item{
			ID:         fmt.Sprint(f.ID),
			Footprint:  footprint(f.Geometry),
			Properties: map[string]any(f.Properties),
			Assets:     map[string]string{},
		}
		if it.Properties == nil {
			it.Properties = map[string]any{}
		}
		if i < len(env.Features) {
			for name, a := range env.Features[i].Assets {
				it.Assets[name] = a.Href
			}
		}
		normalize(&it)
		p.items = append(p.items, it)
	}

	for _, l := range env.Links {
		if l.Rel != "next" || l.Href == "" {
			continue
		}
		p.next = next{URL: l.Href, Method: http.MethodGet}
		if l.Method == http.MethodPost {
			p.next.Method = http.MethodPost
			p.next.Body = l.Body
		}
	}
	return p, nil
}

// normalize fills the shared property keys from their STAC equivalents.
func normalize(it *catalog.Item) {
	props := it.Properties
	if _, ok := props[scene.PropIndex]; !ok {
		props[scene.PropIndex] = it.ID
	}
	if _, ok := props[scene.PropTimeStart]; !ok {
		if s, ok := props["datetime"].(string); ok {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				props[scene.PropTimeStart] = float64(t.UnixMilli())
			}
		}
	}
	if _, ok := props["eo:cloud_cover"]; ok {
		for _, key := range []string{"CLOUD_COVER", "CLOUDY_PIXEL_PERCENTAGE"} {
			if _, ok := props[key]; !ok {
				props[key] = props["eo:cloud_cover"]
			}
		}
	}
}

func footprint(g orb.Geometry) orb.Polygon {
	switch v := g.(type) {
	case orb.Polygon:
		return v
	case orb.MultiPolygon:
		if len(v) > 0 {
			return v[0]
		}
	case nil:
		return nil
	}
	return g.Bound().ToPolygon()
}
