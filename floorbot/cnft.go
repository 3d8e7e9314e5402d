package floorbot

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// cnftClient talks to the secondary stats provider, which serves
// per-policy aggregate metrics and collection thumbnails.
type cnftClient struct {
	api         *apiClient
	ipfsGateway string
	logger      *slog.Logger
}

func newCNFTClient(
	config *CNFTConfig,
	httpClient *http.Client,
	requestsPerSecond float64,
	logger *slog.Logger,
) *cnftClient {
	gateway := config.IPFSGateway
	if gateway == "" {
		gateway = DefaultIPFSGatewayURL
	}
	return &cnftClient{
		api: newAPIClient(
			config.BaseURL,
			httpClient,
			requestsPerSecond,
			logger,
		),
		ipfsGateway: strings.TrimRight(gateway, "/"),
		logger:      logger,
	}
}

// PolicyStats is the composite metrics read used by the tracked-list
// report: one request covering floor price, minted supply and total
// volume.
type PolicyStats struct {
	FloorPrice decimal.Decimal
	Supply     int64

	// Volume is the total traded volume in ADA, rounded to one decimal
	// place
	Volume decimal.Decimal
}

type policyResponse struct {
	Thumbnail   string `json:"thumbnail"`
	FloorPrice  int64  `json:"floor_price"`
	AssetMinted int64  `json:"asset_minted"`
	TotalVolume int64  `json:"total_volume"`
}

// PolicyStats fetches the aggregate stats for a policy id. Absent
// (false, nil error) on 404.
func (c *cnftClient) PolicyStats(
	ctx context.Context,
	policyID string,
) (PolicyStats, bool, error) {
	var data policyResponse
	ok, err := c.api.getJSON(
		ctx,
		"/policy/"+url.PathEscape(policyID),
		nil,
		&data,
	)
	if err != nil {
		c.logger.WarnContext(
			ctx,
			"error fetching policy stats",
			"policy_id", policyID,
			"error", err,
		)
		return PolicyStats{}, false, err
	}
	if !ok {
		return PolicyStats{}, false, nil
	}
	return PolicyStats{
		FloorPrice: lovelaceToADA(data.FloorPrice),
		Supply:     data.AssetMinted,
		Volume:     lovelaceToADA(data.TotalVolume).Round(1),
	}, true, nil
}

// ImageURL fetches the collection's thumbnail and rewrites it into a
// content-addressed gateway URL, keeping only the final path segment of
// the upstream identifier. Thumbnails without a path separator can't be
// addressed that way and come back absent.
func (c *cnftClient) ImageURL(
	ctx context.Context,
	policyID string,
) (string, bool, error) {
	var data policyResponse
	ok, err := c.api.getJSON(
		ctx,
		"/policy/"+url.PathEscape(policyID),
		nil,
		&data,
	)
	if err != nil {
		c.logger.WarnContext(
			ctx,
			"error fetching collection image",
			"policy_id", policyID,
			"error", err,
		)
		return "", false, err
	}
	if !ok || data.Thumbnail == "" {
		return "", false, nil
	}
	if !strings.Contains(data.Thumbnail, "/") {
		return "", false, nil
	}
	segments := strings.Split(data.Thumbnail, "/")
	return c.ipfsGateway + "/" + segments[len(segments)-1], true, nil
}
