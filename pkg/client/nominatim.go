package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"miqat/internal/models"
)

// NominatimClient reverse-geocodes a coordinate into a display name.
type NominatimClient struct {
	*BaseClient
	baseURL string
}

func NewNominatimClient(baseURL string, config ClientConfig, logger *zap.Logger) *NominatimClient {
	if config.Headers == nil {
		config.Headers = map[string]string{}
	}
	// Nominatim's usage policy requires an identifying User-Agent.
	if _, ok := config.Headers["User-Agent"]; !ok {
		config.Headers["User-Agent"] = "miqat/1.0"
	}
	return &NominatimClient{
		BaseClient: NewBaseClient("nominatim", config, logger),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		Hamlet  string `json:"hamlet"`
		State   string `json:"state"`
		Region  string `json:"region"`
		Country string `json:"country"`
	} `json:"address"`
}

// ReverseGeocode returns a short "City, State, Country" name for the
// coordinate, falling back to the raw display name.
func (c *NominatimClient) ReverseGeocode(ctx context.Context, coords models.Coordinate) (string, error) {
	url := fmt.Sprintf("%s/reverse?format=jsonv2&lat=%f&lon=%f&zoom=10&addressdetails=1",
		c.baseURL, coords.Latitude, coords.Longitude)

	body, err := c.GetWithRetry(ctx, url)
	if err != nil {
		return "", eris.Wrap(err, "nominatim: reverse geocode")
	}

	var resp reverseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", eris.Wrap(err, "nominatim: parse response")
	}

	city := firstNonEmpty(resp.Address.City, resp.Address.Town, resp.Address.Village, resp.Address.Hamlet)
	state := firstNonEmpty(resp.Address.State, resp.Address.Region)

	var parts []string
	for _, p := range []string{city, state, resp.Address.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		if resp.DisplayName == "" {
			return "", eris.New("nominatim: empty result")
		}
		return resp.DisplayName, nil
	}
	return strings.Join(parts, ", "), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
