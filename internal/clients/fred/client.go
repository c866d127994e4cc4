// Package fred provides a client for the FRED series observations API.
package fred

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/labormetrics/pulse/internal/clientdata"
	"github.com/rs/zerolog"
)

// missingValue is the sentinel FRED uses in place of a number when an
// observation has no published value.
const missingValue = "."

// Observation is a single (date, value) pair for a series. Value is nil when
// the source reports the observation as missing or the payload value cannot
// be parsed - absence, not a recorded zero.
type Observation struct {
	Date          string   `msgpack:"date"`
	Value         *float64 `msgpack:"value"`
	RealtimeStart string   `msgpack:"realtime_start"`
	RealtimeEnd   string   `msgpack:"realtime_end"`
}

// Client fetches series observations from the FRED API.
type Client struct {
	baseURL   string
	apiKey    string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates a new FRED API client.
// cacheRepo is optional - if nil, response caching is disabled.
func NewClient(apiKey string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   "https://api.stlouisfed.org/fred/series/observations",
		apiKey:    apiKey,
		client:    &http.Client{Timeout: 30 * time.Second},
		log:       log.With().Str("client", "fred").Logger(),
		cacheRepo: cacheRepo,
	}
}

// fredResponse mirrors the FRED observations payload. Values arrive as
// strings; "." marks a missing observation.
type fredResponse struct {
	Observations []struct {
		RealtimeStart string `json:"realtime_start"`
		RealtimeEnd   string `json:"realtime_end"`
		Date          string `json:"date"`
		Value         string `json:"value"`
	} `json:"observations"`
}

// FetchObservations fetches observations for one series from observationStart
// (inclusive) through the present, ascending by date. Recently fetched
// payloads are served from the cache so a retried run does not re-hit the API
// for series that already succeeded.
func (c *Client) FetchObservations(ctx context.Context, seriesID, observationStart string) ([]Observation, error) {
	cacheKey := seriesID + ":" + observationStart

	if c.cacheRepo != nil {
		var cached []Observation
		ok, err := c.cacheRepo.GetIfFresh(cacheKey, &cached)
		if err == nil && ok {
			c.log.Debug().
				Str("series_id", seriesID).
				Str("start", observationStart).
				Int("count", len(cached)).
				Msg("Cache hit")
			return cached, nil
		}
	}

	params := url.Values{}
	params.Set("series_id", seriesID)
	params.Set("api_key", c.apiKey)
	params.Set("file_type", "json")
	params.Set("observation_start", observationStart)
	params.Set("sort_order", "asc")

	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	c.log.Debug().Str("series_id", seriesID).Str("start", observationStart).Msg("Fetching observations")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var payload fredResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	observations := make([]Observation, 0, len(payload.Observations))
	for _, obs := range payload.Observations {
		o := Observation{
			Date:          obs.Date,
			RealtimeStart: obs.RealtimeStart,
			RealtimeEnd:   obs.RealtimeEnd,
		}

		if obs.Value != missingValue {
			v, err := strconv.ParseFloat(obs.Value, 64)
			if err != nil {
				// Malformed value: drop the row, not the run
				c.log.Warn().
					Str("series_id", seriesID).
					Str("date", obs.Date).
					Str("value", obs.Value).
					Msg("Unparseable observation value, treating as missing")
			} else {
				o.Value = &v
			}
		}

		observations = append(observations, o)
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store(cacheKey, observations, clientdata.TTLObservations); err != nil {
			c.log.Warn().Err(err).Str("series_id", seriesID).Msg("Failed to cache observations")
		}
	}

	c.log.Info().
		Str("series_id", seriesID).
		Str("start", observationStart).
		Int("count", len(observations)).
		Msg("Fetched observations")

	return observations, nil
}
