package utility

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/powerwall-tou/pkg/common"
	"github.com/raterudder/powerwall-tou/pkg/log"
	"github.com/raterudder/powerwall-tou/pkg/types"
)

// ErrSiteNotFound is returned when the Amber account has no site matching the
// configuration.
var ErrSiteNotFound = errors.New("amber site not found")

const amberGeneralChannel = "general"

// Amber implements the Source interface for the Amber Electric API. Amber
// publishes wholesale-linked prices in cents per kWh at 5 or 30 minute
// resolution.
type Amber struct {
	apiURL     string
	apiToken   string
	siteNMI    string
	resolution int
	location   *time.Location
	client     *http.Client
	now        func() time.Time
}

// configuredAmber sets up flags for Amber and returns the instance.
func configuredAmber() *Amber {
	a := &Amber{
		client: common.HTTPClient(15 * time.Second),
		now:    time.Now,
	}
	apiURL := lflag.String("amber-api-url", "https://api.amber.com.au/v1", "URL for the Amber Electric API")
	apiToken := lflag.RequiredString("amber-api-token", "Amber Electric API token")
	siteNMI := lflag.String("amber-site-nmi", "", "NMI of the Amber site to use (defaults to the first site)")

	lflag.Do(func() {
		a.apiURL = *apiURL
		a.apiToken = *apiToken
		a.siteNMI = *siteNMI
	})

	return a
}

// Validate ensures the configuration is valid.
func (a *Amber) Validate() error {
	if a.apiURL == "" {
		return fmt.Errorf("amber-api-url is required")
	}
	if _, err := url.Parse(a.apiURL); err != nil {
		return fmt.Errorf("failed to parse amber url (%s): %w", a.apiURL, err)
	}
	if a.apiToken == "" {
		return fmt.Errorf("amber-api-token is required")
	}
	return nil
}

type amberSite struct {
	ID     string `json:"id"`
	NMI    string `json:"nmi"`
	Status string `json:"status"`
}

type amberInterval struct {
	Type        string          `json:"type"`
	Duration    int             `json:"duration"`
	PerKWH      float64         `json:"perKwh"`
	SpotPerKWH  float64         `json:"spotPerKwh"`
	StartTime   strfmt.DateTime `json:"startTime"`
	ChannelType string          `json:"channelType"`
}

// Prices returns the non-actual intervals that start within the next 24 hours.
// Any failure talking to Amber is logged and results in no intervals so the
// caller can fall back to the simulated plan.
func (a *Amber) Prices(ctx context.Context) ([]types.PriceInterval, error) {
	siteID, err := a.resolveSite(ctx)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to resolve amber site", slog.Any("error", err))
		return nil, nil
	}

	now := a.now().In(a.location)
	prices, err := a.fetchPrices(ctx, siteID, now, now.AddDate(0, 0, 1))
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to fetch amber prices", slog.Any("error", err))
		return nil, nil
	}
	if len(prices) == 0 {
		log.Ctx(ctx).WarnContext(ctx, "no amber forecast data available")
		return nil, nil
	}

	cutoff := now.Add(24 * time.Hour)
	filtered := make([]types.PriceInterval, 0, len(prices))
	for _, p := range prices {
		if p.Classification == types.ClassificationActual {
			continue
		}
		if !p.StartTime.Before(cutoff) {
			continue
		}
		filtered = append(filtered, p)
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"got amber prices",
		slog.String("siteID", siteID),
		slog.Int("fetched", len(prices)),
		slog.Int("count", len(filtered)),
	)
	return filtered, nil
}

func (a *Amber) newGetRequest(ctx context.Context, params url.Values, elem ...string) (*http.Request, error) {
	u, err := url.Parse(a.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	u = u.JoinPath(elem...)
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiToken)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (a *Amber) doRequest(req *http.Request, dst any) error {
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("amber api returned status: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// resolveSite returns the id of the site matching the configured NMI or the
// first site if no NMI is configured.
func (a *Amber) resolveSite(ctx context.Context) (string, error) {
	req, err := a.newGetRequest(ctx, nil, "sites")
	if err != nil {
		return "", err
	}
	log.Ctx(ctx).DebugContext(ctx, "fetching amber sites", slog.String("url", req.URL.String()))

	var sites []amberSite
	if err := a.doRequest(req, &sites); err != nil {
		return "", fmt.Errorf("failed to list sites: %w", err)
	}
	for _, s := range sites {
		if a.siteNMI == "" || s.NMI == a.siteNMI {
			return s.ID, nil
		}
	}
	return "", ErrSiteNotFound
}

// fetchPrices retrieves the general channel prices for the site between the
// dates of start and end.
func (a *Amber) fetchPrices(ctx context.Context, siteID string, start, end time.Time) ([]types.PriceInterval, error) {
	params := url.Values{}
	params.Set("startDate", start.Format(time.DateOnly))
	params.Set("endDate", end.Format(time.DateOnly))
	params.Set("resolution", fmt.Sprint(a.resolution))

	req, err := a.newGetRequest(ctx, params, "sites", siteID, "prices")
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).DebugContext(ctx, "fetching prices from amber", slog.String("url", req.URL.String()))

	var data []amberInterval
	if err := a.doRequest(req, &data); err != nil {
		return nil, err
	}

	prices := make([]types.PriceInterval, 0, len(data))
	for _, item := range data {
		if item.ChannelType != "" && item.ChannelType != amberGeneralChannel {
			continue
		}
		class := types.Classification(item.Type)
		if !class.Valid() {
			log.Ctx(ctx).WarnContext(ctx, "unknown amber interval type", slog.String("type", item.Type))
			continue
		}
		duration := time.Duration(item.Duration) * time.Minute
		if duration <= 0 {
			duration = time.Duration(a.resolution) * time.Minute
		}
		prices = append(prices, types.PriceInterval{
			// Amber starts intervals one second past the boundary.
			StartTime:      time.Time(item.StartTime).In(a.location).Truncate(time.Minute),
			Duration:       duration,
			BuyPerKWH:      item.PerKWH / 100,
			SellPerKWH:     item.SpotPerKWH / 100,
			Classification: class,
		})
	}
	return prices, nil
}
