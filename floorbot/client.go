package floorbot

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

// apiClient is the shared outbound HTTP adapter for both upstream APIs.
// It issues GET requests under a fixed base URL and classifies the
// outcome: 404 is "no data" (ok=false, nil error), any other non-2xx is
// an [UpstreamError], and anything below HTTP (dial/timeout/decode) is a
// [TransportError]. No retries - callers own any retry policy, and none
// is needed here.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

func newAPIClient(
	baseURL string,
	httpClient *http.Client,
	requestsPerSecond float64,
	logger *slog.Logger,
) *apiClient {
	if logger == nil {
		logger = slog.Default()
	}
	c := &apiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
	if requestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return c
}

// getJSON issues a GET for path under the client's base URL and decodes
// the JSON response into out. The second return value is false, with a
// nil error, when the upstream responds 404 or the request list yields
// no body to decode - the caller treats that as an absent value.
func (c *apiClient) getJSON(
	ctx context.Context,
	path string,
	params url.Values,
	out any,
) (bool, error) {
	requestURL := c.baseURL + path
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return false, &TransportError{URL: requestURL, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		requestURL,
		nil,
	)
	if err != nil {
		return false, &TransportError{URL: requestURL, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, &TransportError{URL: requestURL, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < http.StatusOK ||
		resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.WarnContext(
			ctx,
			"upstream error",
			"status", resp.StatusCode,
			"url", requestURL,
		)
		return false, &UpstreamError{Status: resp.StatusCode, URL: requestURL}
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, &TransportError{URL: requestURL, Err: err}
	}
	return true, nil
}
