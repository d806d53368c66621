package stac_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/leaf-mosaic/internal/catalog"
	"github.com/forest-guardian/leaf-mosaic/internal/catalog/stac"
	"github.com/forest-guardian/leaf-mosaic/internal/scene"
)

func feature(id, datetime string) string {
	return fmt.Sprintf(`{"type":"Feature","id":%q,
		"geometry":{"type":"Polygon","coordinates":[[[-76,45],[-75,45],[-75,46],[-76,46],[-76,45]]]},
		"properties":{"datetime":%q,"eo:cloud_cover":12.5},
		"assets":{"SR_B2":{"href":"https://data/%s/B2.tif"}}}`, id, datetime, id)
}

func fastConfig(url string) stac.Config {
	return stac.Config{
		BaseURL:         url,
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func TestClient_SearchPagesWithCredentialRotation(t *testing.T) {
	var searches []map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		id, _, ok := r.BasicAuth()
		if !ok {
			_ = r.ParseForm()
			id = r.Form.Get("client_id")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%s","token_type":"bearer","expires_in":3600}`, id)
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-good" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var body map[string]any
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))
		searches = append(searches, body)

		if body["token"] == nil {
			fmt.Fprintf(w, `{"type":"FeatureCollection","features":[%s],
				"links":[{"rel":"next","href":"%s/search","method":"POST","body":{"token":"p2"}}]}`,
				feature("A", "2020-07-05T15:00:00Z"), "http://"+r.Host)
			return
		}
		fmt.Fprintf(w, `{"type":"FeatureCollection","features":[%s],"links":[]}`, feature("B", "2020-07-06T15:00:00Z"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := fastConfig(srv.URL)
	cfg.ClientIDs = "bad,good"
	cfg.ClientSecrets = "x,y"
	cfg.TokenURL = srv.URL + "/token"
	c, err := stac.NewClient(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)

	items, err := c.Search(context.Background(), catalog.Query{
		CatalogID:     "LANDSAT/LC08/C02/T1_L2",
		Region:        orb.Polygon{orb.Ring{{-76, 45}, {-75, 45}, {-75, 46}, {-76, 45}}},
		Start:         time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
		End:           time.Date(2020, 9, 1, 0, 0, 0, 0, time.UTC),
		CloudProperty: "CLOUD_COVER",
		MaxCloud:      50,
	})
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := searches[0]
	assert.Equal(t, []any{"LANDSAT/LC08/C02/T1_L2"}, first["collections"])
	assert.Equal(t, []any{-76.0, 45.0, -75.0, 46.0}, first["bbox"])
	assert.Equal(t, "2020-06-01T00:00:00Z/2020-09-01T00:00:00Z", first["datetime"])
	assert.Equal(t, map[string]any{"CLOUD_COVER": map[string]any{"lt": 50.0}}, first["query"])

	a := items[0]
	assert.Equal(t, "A", a.ID)
	assert.Equal(t, "https://data/A/B2.tif", a.Assets["SR_B2"])
	assert.Equal(t, 12.5, a.Properties["CLOUD_COVER"])
	assert.Equal(t, "A", a.Properties[scene.PropIndex])
	ms, err := scene.Number(a.Properties, scene.PropTimeStart)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 7, 5, 15, 0, 0, 0, time.UTC).UnixMilli(), int64(ms))
	assert.Len(t, a.Footprint[0], 5)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, `{"type":"FeatureCollection","features":[%s]}`, feature("A", "2020-07-05T15:00:00Z"))
	}))
	defer srv.Close()

	c, err := stac.NewClient(context.Background(), fastConfig(srv.URL), zerolog.Nop())
	require.NoError(t, err)
	items, err := c.Search(context.Background(), catalog.Query{CatalogID: "x", IDs: []string{"A"}})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "bad collection")
	}))
	defer srv.Close()

	c, err := stac.NewClient(context.Background(), fastConfig(srv.URL), zerolog.Nop())
	require.NoError(t, err)
	_, err = c.Search(context.Background(), catalog.Query{CatalogID: "nope"})

	var remote *catalog.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusBadRequest, remote.StatusCode)
	assert.Equal(t, "bad collection", remote.Body)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_ServerErrorsExhaustRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := stac.NewClient(context.Background(), fastConfig(srv.URL), zerolog.Nop())
	require.NoError(t, err)
	_, err = c.Search(context.Background(), catalog.Query{CatalogID: "x"})

	var remote *catalog.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusServiceUnavailable, remote.StatusCode)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := stac.NewClient(context.Background(), stac.Config{}, zerolog.Nop())
	assert.Error(t, err)

	_, err = stac.NewClient(context.Background(), stac.Config{BaseURL: "http://x", ClientIDs: "a,b", ClientSecrets: "c", TokenURL: "t"}, zerolog.Nop())
	assert.Error(t, err)
}
