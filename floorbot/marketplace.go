package floorbot

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
)

const searchVerifiedFilter = "should-be-verified"

// Collection identifies a marketplace collection. Instances are only
// produced by [marketplaceClient.SearchCollections]; upstream entries
// missing display_name or policy_id pass through with empty fields
// rather than being filtered out.
type Collection struct {
	// Name is the canonical, URL-safe collection name, used as a path
	// segment in floor price requests
	Name string `json:"url"`

	// DisplayName is the human-readable label
	DisplayName string `json:"display_name"`

	// PolicyID is the opaque upstream identifier. It's never parsed,
	// only compared and interpolated.
	PolicyID string `json:"policy_id"`
}

// marketplaceClient talks to the primary marketplace API: collection
// search, floor prices, and the transaction history used for last-sale
// lookups.
type marketplaceClient struct {
	api    *apiClient
	logger *slog.Logger
}

func newMarketplaceClient(
	config *MarketplaceConfig,
	httpClient *http.Client,
	requestsPerSecond float64,
	logger *slog.Logger,
) *marketplaceClient {
	return &marketplaceClient{
		api: newAPIClient(
			config.BaseURL,
			httpClient,
			requestsPerSecond,
			logger,
		),
		logger: logger,
	}
}

type searchCollectionsResponse struct {
	Collections []Collection `json:"collections"`
}

type floorPriceResponse struct {
	Floor *int64 `json:"floor"`
}

type transactionsResponse struct {
	Transactions []struct {
		AmountLovelace int64 `json:"amount_lovelace"`
	} `json:"transactions"`
}

// SearchCollections resolves free-text input to at most limit candidate
// collections, preserving the upstream (relevance-ranked) order. A 404
// or an empty result list yields an empty slice and no error.
func (m *marketplaceClient) SearchCollections(
	ctx context.Context,
	query string,
	limit int,
) ([]Collection, error) {
	params := url.Values{
		"nameQuery": {query},
		"verified":  {searchVerifiedFilter},
		"size":      {strconv.Itoa(limit)},
	}
	var data searchCollectionsResponse
	ok, err := m.api.getJSON(ctx, "/search/collections", params, &data)
	if err != nil {
		m.logger.WarnContext(
			ctx,
			"error searching collections",
			"query", query,
			"error", err,
		)
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return data.Collections, nil
}

// FloorPrice fetches the collection's current floor price in ADA. The
// second return value is false when the upstream has no floor for the
// collection (404 or a null value).
func (m *marketplaceClient) FloorPrice(
	ctx context.Context,
	collection Collection,
) (decimal.Decimal, bool, error) {
	var data floorPriceResponse
	ok, err := m.api.getJSON(
		ctx,
		"/collection/"+url.PathEscape(collection.Name)+"/floor",
		nil,
		&data,
	)
	if err != nil {
		m.logger.WarnContext(
			ctx,
			"error fetching floor price",
			"collection", collection.Name,
			"error", err,
		)
		return decimal.Decimal{}, false, err
	}
	if !ok || data.Floor == nil {
		return decimal.Decimal{}, false, nil
	}
	return lovelaceToADA(*data.Floor), true, nil
}

// LastSale fetches the amount of the collection's most recent sale, in
// ADA. Absent when the collection has no recorded transactions.
func (m *marketplaceClient) LastSale(
	ctx context.Context,
	collection Collection,
) (decimal.Decimal, bool, error) {
	params := url.Values{
		"page":  {"1"},
		"count": {"1"},
	}
	var data transactionsResponse
	ok, err := m.api.getJSON(
		ctx,
		"/collection/"+url.PathEscape(collection.PolicyID)+"/transactions",
		params,
		&data,
	)
	if err != nil {
		m.logger.WarnContext(
			ctx,
			"error fetching last sale",
			"policy_id", collection.PolicyID,
			"error", err,
		)
		return decimal.Decimal{}, false, err
	}
	if !ok || len(data.Transactions) == 0 {
		return decimal.Decimal{}, false, nil
	}
	return lovelaceToADA(data.Transactions[0].AmountLovelace), true, nil
}

// lovelaceToADA converts an upstream minor-unit (lovelace) integer
// amount to the major unit. Exact: 5000000 lovelace is 5 ADA.
func lovelaceToADA(amount int64) decimal.Decimal {
	return decimal.New(amount, -6)
}
