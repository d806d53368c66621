package notification_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/leaf-mosaic/internal/notification"
)

func TestDiscord(t *testing.T) {
	var got notification.DiscordMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := &notification.Discord{ErrorURL: srv.URL + "/err", SuccessURL: srv.URL + "/fail"}
	require.NoError(t, d.Error(context.Background(), "T1 July: empty collection"))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "T1 July: empty collection", got.Embeds[0].Description)
	assert.Equal(t, 16711680, got.Embeds[0].Color)

	assert.Error(t, d.Success(context.Background(), "done"))

	// disabled outcome
	assert.NoError(t, (&notification.Discord{}).Success(context.Background(), "done"))
}
