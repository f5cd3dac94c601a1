package command

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultWeatherBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// WeatherClient looks up current conditions from OpenWeatherMap.
type WeatherClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewWeatherClient returns a client, or nil when no API key is configured so
// the weather command degrades gracefully.
func NewWeatherClient(apiKey string) *WeatherClient {
	if apiKey == "" {
		return nil
	}
	return &WeatherClient{
		apiKey:  apiKey,
		baseURL: defaultWeatherBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type weatherResponse struct {
	Name string `json:"name"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

// Lookup fetches current weather for a city and formats the reply text.
func (w *WeatherClient) Lookup(ctx context.Context, city string) (string, error) {
	query := url.Values{}
	query.Set("q", city)
	query.Set("appid", w.apiKey)
	query.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("weather request: unexpected status %d", resp.StatusCode)
	}

	var data weatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("weather response: %w", err)
	}

	condition := "unknown"
	if len(data.Weather) > 0 {
		condition = data.Weather[0].Description
	}

	return fmt.Sprintf("🌤️ Weather in %s:\n🌡️ Temperature: %.1f°C\n💧 Humidity: %d%%\n🌫️ Conditions: %s\n💨 Wind: %.1f m/s",
		data.Name, data.Main.Temp, data.Main.Humidity, condition, data.Wind.Speed), nil
}
