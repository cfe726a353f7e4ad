package adsource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pearmediallc/creative-library-analytics/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.AdSourceConfig{
		BaseURL:     srv.URL,
		AccessToken: "token",
		PageSize:    2,
		HTTPTimeout: 5 * time.Second,
	}, zap.NewNop())
}

func TestListSpendRecords_FollowsPaging(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/act_123/ads", r.URL.Path)
		assert.Equal(t, "token", r.URL.Query().Get("access_token"))

		if r.URL.Query().Get("after") == "" {
			w.Write([]byte(`{
				"data":[
					{"id":"ad-1","name":"Promo - Ritu","insights":{"data":[{"spend":"12.50","impressions":"1000","clicks":"20"}]}},
					{"id":"ad-2","name":"No delivery","insights":{"data":[]}}
				],
				"paging":{"cursors":{"after":"cur2"},"next":"http://next"}
			}`))
			return
		}
		assert.Equal(t, "cur2", r.URL.Query().Get("after"))
		w.Write([]byte(`{
			"data":[
				{"id":"ad-3","name":"Promo (Priya)","insights":{"data":[{"spend":"3","impressions":"50","clicks":"bad"}]}}
			],
			"paging":{"cursors":{"after":""},"next":""}
		}`))
	})

	out, err := c.ListSpendRecords(context.Background(), "act_123")
	require.NoError(t, err)

	// ad-3 has an unparsable click count and is skipped; ad-2 without
	// delivery comes through zero-valued.
	require.Len(t, out, 2)
	assert.Equal(t, "ad-1", out[0].Key)
	assert.Equal(t, "Promo - Ritu", out[0].Label)
	assert.Equal(t, "12.5", out[0].Spend.String())
	assert.Equal(t, int64(1000), out[0].Impressions)
	assert.Equal(t, int64(20), out[0].Clicks)

	assert.Equal(t, "ad-2", out[1].Key)
	assert.True(t, out[1].Spend.IsZero())
}

func TestListSpendRecords_UpstreamError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"bad token"}`))
	})

	_, err := c.ListSpendRecords(context.Background(), "act_123")
	assert.Error(t, err)
}
