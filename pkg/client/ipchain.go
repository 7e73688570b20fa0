package client

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"miqat/internal/models"
)

// Errors a provider response can produce. Both cause the chain to move on to
// the next provider.
var (
	ErrUnparseable = errors.New("ipchain: no coordinates in response")
	ErrImplausible = errors.New("ipchain: implausible (0,0) coordinates")
	ErrExhausted   = errors.New("ipchain: all providers failed")
)

// IPProvider is one network location-estimation endpoint. Parse may be nil,
// in which case the tolerant default parser is used.
type IPProvider struct {
	Name  string
	URL   string
	Parse func(body []byte) (models.Coordinate, error)
}

// DefaultProviders returns the built-in endpoints, ordered by quality.
func DefaultProviders() []IPProvider {
	return []IPProvider{
		{Name: "ipapi", URL: "https://ipapi.co/json/"},
		{Name: "freeipapi", URL: "https://freeipapi.com/api/json"},
		{Name: "ipwhois", URL: "https://ipwhois.app/json/"},
	}
}

// IPChain tries an ordered list of providers and returns the first plausible
// coordinate.
type IPChain struct {
	providers []IPProvider
	clients   map[string]*BaseClient
	config    ClientConfig
	logger    *zap.Logger
}

func NewIPChain(providers []IPProvider, config ClientConfig, logger *zap.Logger) *IPChain {
	// Providers never retry internally; failing fast to the next endpoint is
	// the retry strategy.
	config.MaxRetries = 0

	chain := &IPChain{
		providers: append([]IPProvider(nil), providers...),
		clients:   make(map[string]*BaseClient),
		config:    config,
		logger:    logger,
	}
	for _, p := range chain.providers {
		chain.clients[p.Name] = NewBaseClient("ip-"+p.Name, config, logger)
	}
	return chain
}

// Register adds a provider ahead of the built-in ones, so operator-supplied
// endpoints win without touching resolution logic.
func (c *IPChain) Register(p IPProvider) {
	c.providers = append([]IPProvider{p}, c.providers...)
	if _, ok := c.clients[p.Name]; !ok {
		c.clients[p.Name] = NewBaseClient("ip-"+p.Name, c.config, c.logger)
	}
}

// Lookup walks the providers in order and returns the first plausible
// coordinate, or ErrExhausted when every provider fails.
func (c *IPChain) Lookup(ctx context.Context) (models.Coordinate, string, error) {
	for _, prov := range c.providers {
		if err := ctx.Err(); err != nil {
			return models.Coordinate{}, "", err
		}

		body, err := c.clients[prov.Name].GetWithRetry(ctx, prov.URL)
		if err != nil {
			c.logger.Warn("IP provider failed",
				zap.String("provider", prov.Name),
				zap.Error(err))
			continue
		}

		parse := prov.Parse
		if parse == nil {
			parse = ParseCoordinates
		}

		coords, err := parse(body)
		if err != nil {
			c.logger.Warn("IP provider returned no usable coordinates",
				zap.String("provider", prov.Name),
				zap.Error(err))
			continue
		}

		c.logger.Info("Location found via IP provider",
			zap.String("provider", prov.Name),
			zap.Float64("lat", coords.Latitude),
			zap.Float64("lon", coords.Longitude))
		return coords, prov.Name, nil
	}

	return models.Coordinate{}, "", ErrExhausted
}

// latitude and longitude key spellings seen across the built-in providers,
// tried in priority order.
var (
	latKeys = []string{"latitude", "lat", "latitud"}
	lonKeys = []string{"longitude", "lon", "lng", "long"}
)

// ParseCoordinates extracts a coordinate pair from provider JSON. It
// tolerates flat and location-nested fields and numeric or string-encoded
// values, and rejects the (0,0) error sentinel.
func ParseCoordinates(body []byte) (models.Coordinate, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return models.Coordinate{}, ErrUnparseable
	}

	// Some APIs nest coordinates in a "location" object, others are flat.
	scopes := []map[string]json.RawMessage{raw}
	if nestedRaw, ok := raw["location"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(nestedRaw, &nested); err == nil {
			scopes = append(scopes, nested)
		}
	}

	lat, latOK := firstNumber(scopes, latKeys)
	lon, lonOK := firstNumber(scopes, lonKeys)
	if !latOK || !lonOK {
		return models.Coordinate{}, ErrUnparseable
	}

	coords := models.Coordinate{Latitude: lat, Longitude: lon}
	if coords.IsZero() {
		return models.Coordinate{}, ErrImplausible
	}
	if !coords.Valid() {
		return models.Coordinate{}, ErrUnparseable
	}
	return coords, nil
}

func firstNumber(scopes []map[string]json.RawMessage, keys []string) (float64, bool) {
	for _, scope := range scopes {
		for _, key := range keys {
			rawValue, ok := scope[key]
			if !ok {
				continue
			}
			if n, ok := asNumber(rawValue); ok {
				return n, true
			}
		}
	}
	return 0, false
}

func asNumber(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}
