package floorbot

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCNFT(t *testing.T, handler http.HandlerFunc) *cnftClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return newCNFTClient(
		&CNFTConfig{
			BaseURL:     server.URL,
			IPFSGateway: DefaultIPFSGatewayURL,
		},
		server.Client(),
		0,
		slog.Default(),
	)
}

func TestPolicyStats(t *testing.T) {
	t.Parallel()
	client := newTestCNFT(
		t,
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/policy/p1", r.URL.Path)
			_, _ = w.Write([]byte(`{
				"thumbnail": "ipfs/abc123",
				"floor_price": 1500000,
				"asset_minted": 10000,
				"total_volume": 1234567
			}`))
		},
	)

	stats, found, err := client.PolicyStats(context.Background(), "p1")
	require.NoError(t, err)
	require.True(t, found)

	assert.True(
		t,
		stats.FloorPrice.Equal(decimal.RequireFromString("1.5")),
		"expected 1.5, got %s", stats.FloorPrice,
	)
	assert.Equal(t, int64(10000), stats.Supply)

	// volume is rounded to one decimal place after unit conversion
	assert.True(
		t,
		stats.Volume.Equal(decimal.RequireFromString("1.2")),
		"expected 1.2, got %s", stats.Volume,
	)
}

func TestPolicyStatsNotFound(t *testing.T) {
	t.Parallel()
	client := newTestCNFT(
		t,
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
	)

	_, found, err := client.PolicyStats(context.Background(), "p1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestImageURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		thumbnail string
		wantFound bool
		wantTail  string
	}{
		{
			name:      "ipfs path",
			thumbnail: "ipfs/abc123",
			wantFound: true,
			wantTail:  "abc123",
		},
		{
			name:      "nested path keeps final segment",
			thumbnail: "ipfs://foo/bar/abc123",
			wantFound: true,
			wantTail:  "abc123",
		},
		{
			name:      "no path separator",
			thumbnail: "abc123",
			wantFound: false,
		},
		{
			name:      "empty thumbnail",
			thumbnail: "",
			wantFound: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := newTestCNFT(
				t,
				func(w http.ResponseWriter, _ *http.Request) {
					body, _ := json.Marshal(map[string]any{
						"thumbnail": tt.thumbnail,
					})
					_, _ = w.Write(body)
				},
			)

			imageURL, found, err := client.ImageURL(
				context.Background(),
				"p1",
			)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFound, found)
			if tt.wantFound {
				assert.True(
					t,
					strings.HasPrefix(
						imageURL,
						DefaultIPFSGatewayURL+"/",
					),
					"unexpected gateway prefix: %s", imageURL,
				)
				assert.True(
					t,
					strings.HasSuffix(imageURL, "/"+tt.wantTail),
					"unexpected tail: %s", imageURL,
				)
			}
		})
	}
}
