package floorbot

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMarketplace(
	t *testing.T,
	handler http.HandlerFunc,
) *marketplaceClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return newMarketplaceClient(
		&MarketplaceConfig{BaseURL: server.URL, SearchLimit: 5},
		server.Client(),
		0,
		slog.Default(),
	)
}

func TestSearchCollectionsPreservesOrder(t *testing.T) {
	t.Parallel()
	client := newTestMarketplace(
		t,
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/search/collections", r.URL.Path)
			assert.Equal(
				t,
				searchVerifiedFilter,
				r.URL.Query().Get("verified"),
			)
			assert.Equal(t, "clay", r.URL.Query().Get("nameQuery"))
			assert.Equal(t, "5", r.URL.Query().Get("size"))
			_, _ = w.Write([]byte(`{
				"collections": [
					{"url": "clay-nation", "display_name": "Clay Nation", "policy_id": "p1"},
					{"url": "clay-mates", "display_name": "Clay Mates", "policy_id": "p2"},
					{"url": "clay-pets", "display_name": "", "policy_id": ""}
				]
			}`))
		},
	)

	collections, err := client.SearchCollections(
		context.Background(),
		"clay",
		5,
	)
	require.NoError(t, err)
	require.Len(t, collections, 3)

	assert.Equal(
		t,
		Collection{
			Name:        "clay-nation",
			DisplayName: "Clay Nation",
			PolicyID:    "p1",
		},
		collections[0],
	)
	assert.Equal(t, "clay-mates", collections[1].Name)

	// malformed entries pass through, they aren't filtered
	assert.Equal(t, "clay-pets", collections[2].Name)
	assert.Empty(t, collections[2].DisplayName)
	assert.Empty(t, collections[2].PolicyID)
}

func TestSearchCollectionsEmpty(t *testing.T) {
	t.Parallel()

	t.Run("empty list", func(t *testing.T) {
		t.Parallel()
		client := newTestMarketplace(
			t,
			func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"collections": []}`))
			},
		)
		collections, err := client.SearchCollections(
			context.Background(),
			"nothing",
			5,
		)
		require.NoError(t, err)
		assert.Empty(t, collections)
	})

	t.Run("missing field", func(t *testing.T) {
		t.Parallel()
		client := newTestMarketplace(
			t,
			func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{}`))
			},
		)
		collections, err := client.SearchCollections(
			context.Background(),
			"nothing",
			5,
		)
		require.NoError(t, err)
		assert.Empty(t, collections)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		client := newTestMarketplace(
			t,
			func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
		)
		collections, err := client.SearchCollections(
			context.Background(),
			"nothing",
			5,
		)
		require.NoError(t, err)
		assert.Empty(t, collections)
	})
}

func TestSearchCollectionsUpstreamError(t *testing.T) {
	t.Parallel()
	client := newTestMarketplace(
		t,
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
	)
	_, err := client.SearchCollections(context.Background(), "clay", 5)

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusBadGateway, upstreamErr.Status)
}

func TestFloorPriceConversion(t *testing.T) {
	t.Parallel()
	client := newTestMarketplace(
		t,
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/collection/clay-nation/floor", r.URL.Path)
			_, _ = w.Write([]byte(`{"floor": 5000000}`))
		},
	)

	price, found, err := client.FloorPrice(
		context.Background(),
		Collection{Name: "clay-nation"},
	)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(
		t,
		price.Equal(decimal.RequireFromString("5.0")),
		"expected 5.0, got %s", price,
	)
}

func TestFloorPriceAbsent(t *testing.T) {
	t.Parallel()

	t.Run("null floor", func(t *testing.T) {
		t.Parallel()
		client := newTestMarketplace(
			t,
			func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"floor": null}`))
			},
		)
		_, found, err := client.FloorPrice(
			context.Background(),
			Collection{Name: "clay-nation"},
		)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("unknown collection", func(t *testing.T) {
		t.Parallel()
		client := newTestMarketplace(
			t,
			func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
		)
		_, found, err := client.FloorPrice(
			context.Background(),
			Collection{Name: "who"},
		)
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestLastSale(t *testing.T) {
	t.Parallel()
	client := newTestMarketplace(
		t,
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/collection/p1/transactions", r.URL.Path)
			assert.Equal(t, "1", r.URL.Query().Get("page"))
			assert.Equal(t, "1", r.URL.Query().Get("count"))
			_, _ = w.Write([]byte(`{
				"transactions": [{"amount_lovelace": 2500000}]
			}`))
		},
	)

	amount, found, err := client.LastSale(
		context.Background(),
		Collection{PolicyID: "p1"},
	)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(
		t,
		amount.Equal(decimal.RequireFromString("2.5")),
		"expected 2.5, got %s", amount,
	)
}

func TestLastSaleNoTransactions(t *testing.T) {
	t.Parallel()
	client := newTestMarketplace(
		t,
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"transactions": []}`))
		},
	)

	_, found, err := client.LastSale(
		context.Background(),
		Collection{PolicyID: "p1"},
	)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLovelaceToADA(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "5", lovelaceToADA(5000000).String())
	assert.Equal(t, "1.234567", lovelaceToADA(1234567).String())
	assert.Equal(t, "0", lovelaceToADA(0).String())
	assert.Equal(t, "1.2", lovelaceToADA(1234567).Round(1).String())
}
