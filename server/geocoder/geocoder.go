package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Daskott/haven/server/logger"
	"github.com/Daskott/haven/shared"
)

const (
	DEFAULT_URL        = "https://nominatim.openstreetmap.org"
	DEFAULT_USER_AGENT = "haven-safety-app"
)

var logg = logger.NewLogger()

// Nominatim resolves coordinates with a Nominatim compatible /reverse endpoint.
type Nominatim struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

func NewNominatim(config shared.GeocoderConfig, timeout time.Duration) *Nominatim {
	baseURL := strings.TrimSuffix(config.Url, "/")
	if baseURL == "" {
		baseURL = DEFAULT_URL
	}

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = DEFAULT_USER_AGENT
	}

	return &Nominatim{
		baseURL:   baseURL,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

// Reverse returns the address for lat/lon. Lookup failures are logged and
// the raw coordinates are returned instead.
func (n *Nominatim) Reverse(ctx context.Context, lat, lon float64) string {
	place, err := n.lookup(ctx, lat, lon)
	if err != nil {
		logg.Errorf("reverse geocoding error: %v", err)
		return Fallback(lat, lon)
	}

	return place
}

func (n *Nominatim) lookup(ctx context.Context, lat, lon float64) (string, error) {
	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("lat", formatCoordinate(lat))
	query.Set("lon", formatCoordinate(lon))
	query.Set("accept-language", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/reverse?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %v", resp.StatusCode)
	}

	body := reverseResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode response: %v", err)
	}

	if body.Error != "" {
		return "", fmt.Errorf("nominatim: %v", body.Error)
	}

	if strings.TrimSpace(body.DisplayName) == "" {
		return "", fmt.Errorf("no address for %v,%v", lat, lon)
	}

	return body.DisplayName, nil
}

// Fallback is the place name used when an address can't be resolved.
func Fallback(lat, lon float64) string {
	return fmt.Sprintf("Lat: %s, Lon: %s", formatCoordinate(lat), formatCoordinate(lon))
}

func MapsLink(lat, lon float64) string {
	return fmt.Sprintf("https://maps.google.com/?q=%s,%s", formatCoordinate(lat), formatCoordinate(lon))
}

func formatCoordinate(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
