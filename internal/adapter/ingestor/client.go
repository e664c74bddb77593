package ingestor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

// Client asks the upstream ingestor service to fetch one hour of Open-Meteo
// data into the landing zone.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an ingestor client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Trigger calls POST {base}/ingest/hourly. Any non-200 status is an error.
func (c *Client) Trigger(ctx context.Context, req domain.TriggerRequest) error {
	params := url.Values{
		"city":        {req.Location.City},
		"latitude":    {strconv.FormatFloat(req.Location.Latitude, 'f', -1, 64)},
		"longitude":   {strconv.FormatFloat(req.Location.Longitude, 'f', -1, 64)},
		"hour_offset": {strconv.Itoa(req.HourOffset)},
	}
	resp, err := c.doRequest(ctx, c.baseURL+"/ingest/hourly?"+params.Encode())
	if err != nil {
		return err
	}
	c.logger.Info("ingestion triggered",
		"city", req.Location.City,
		"hour_offset", req.HourOffset,
		"status", resp.Status,
		"message", resp.Message,
	)
	return nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, nil)
	if err != nil {
		return response{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("ingest request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return response{}, fmt.Errorf("ingestor error: status %d: %s", resp.StatusCode, body)
	}

	var ingestResp response
	if err := json.NewDecoder(resp.Body).Decode(&ingestResp); err != nil {
		return response{}, fmt.Errorf("decode response: %w", err)
	}
	return ingestResp, nil
}

// Ingestor API response body.

type response struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}
