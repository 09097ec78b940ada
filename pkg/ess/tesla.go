package ess

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/raterudder/powerwall-tou/pkg/log"
	"github.com/raterudder/powerwall-tou/pkg/types"
)

// ErrNoEnergySite is returned when the account has no energy products.
var ErrNoEnergySite = errors.New("no energy site found")

const teslaDeviceTypeEnergy = "energy"

// Tesla implements the Publisher interface using the Tesla Fleet API.
type Tesla struct {
	baseURL string
	tokens  *TokenRefresher
	client  *http.Client
}

// NewTesla returns a Tesla publisher talking to baseURL.
func NewTesla(baseURL string, tokens *TokenRefresher, client *http.Client) *Tesla {
	return &Tesla{
		baseURL: baseURL,
		tokens:  tokens,
		client:  client,
	}
}

// Validate ensures the configuration is valid.
func (t *Tesla) Validate() error {
	if t.baseURL == "" {
		return fmt.Errorf("tesla-api-url is required")
	}
	if _, err := url.Parse(t.baseURL); err != nil {
		return fmt.Errorf("failed to parse tesla url (%s): %w", t.baseURL, err)
	}
	return nil
}

type teslaResponse struct {
	Response json.RawMessage `json:"response"`
	Error    string          `json:"error"`
}

type teslaProduct struct {
	DeviceType   string `json:"device_type"`
	EnergySiteID int64  `json:"energy_site_id"`
	SiteName     string `json:"site_name"`
	ResourceType string `json:"resource_type"`
}

// Publish exchanges the refresh token once, finds the account's energy site
// and replaces its tariff with doc. Nothing is retried.
func (t *Tesla) Publish(ctx context.Context, doc types.TariffDocument) error {
	token, err := t.tokens.AccessToken(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get tesla access token", slog.Any("error", err))
		return fmt.Errorf("failed to get access token: %w", err)
	}

	products, err := t.listProducts(ctx, token)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list tesla products", slog.Any("error", err))
		return fmt.Errorf("failed to list products: %w", err)
	}

	siteID, err := findEnergySiteID(products)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to find energy site", slog.Int("products", len(products)), slog.Any("error", err))
		return err
	}

	if err := t.submitTOU(ctx, token, siteID, doc); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to submit tariff", slog.Int64("energySiteID", siteID), slog.Any("error", err))
		return fmt.Errorf("failed to submit tariff: %w", err)
	}

	log.Ctx(ctx).InfoContext(ctx, "published tariff to tesla", slog.Int64("energySiteID", siteID))
	return nil
}

func (t *Tesla) newRequest(ctx context.Context, method, token string, body io.Reader, elem ...string) (*http.Request, error) {
	u, err := url.Parse(t.baseURL)
	if err != nil {
		return nil, err
	}
	u = u.JoinPath(elem...)

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (t *Tesla) doRequest(req *http.Request, dest interface{}) error {
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	var tr teslaResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		log.Ctx(req.Context()).ErrorContext(req.Context(), "failed to decode tesla response", slog.Any("error", err), slog.String("body", string(body)))
		return fmt.Errorf("failed to decode tesla response: %w", err)
	}
	if tr.Error != "" {
		return fmt.Errorf("tesla api error: %s", tr.Error)
	}

	if dest != nil {
		if err := json.Unmarshal(tr.Response, dest); err != nil {
			return fmt.Errorf("failed to decode tesla result: %w", err)
		}
	} else {
		log.Ctx(req.Context()).DebugContext(req.Context(), "tesla request success", slog.String("url", req.URL.String()), slog.String("response", string(tr.Response)))
	}
	return nil
}

func (t *Tesla) listProducts(ctx context.Context, token string) ([]teslaProduct, error) {
	req, err := t.newRequest(ctx, http.MethodGet, token, nil, "api", "1", "products")
	if err != nil {
		return nil, err
	}

	var products []teslaProduct
	if err := t.doRequest(req, &products); err != nil {
		return nil, err
	}
	log.Ctx(ctx).DebugContext(ctx, "got tesla products", slog.Int("count", len(products)))
	return products, nil
}

// findEnergySiteID returns the first energy product's site id.
func findEnergySiteID(products []teslaProduct) (int64, error) {
	for _, p := range products {
		if p.DeviceType == teslaDeviceTypeEnergy && p.EnergySiteID != 0 {
			return p.EnergySiteID, nil
		}
	}
	return 0, ErrNoEnergySite
}

func (t *Tesla) submitTOU(ctx context.Context, token string, siteID int64, doc types.TariffDocument) error {
	body, err := json.Marshal(types.TOUSettingsRequest{
		TOUSettings: types.TOUSettings{TariffContentV2: doc},
	})
	if err != nil {
		return fmt.Errorf("failed to encode tariff: %w", err)
	}

	req, err := t.newRequest(
		ctx,
		http.MethodPost,
		token,
		bytes.NewReader(body),
		"api", "1", "energy_sites", strconv.FormatInt(siteID, 10), "time_of_use_settings",
	)
	if err != nil {
		return err
	}
	log.Ctx(ctx).DebugContext(ctx, "submitting tariff", slog.Int64("energySiteID", siteID), slog.Int("bytes", len(body)))
	return t.doRequest(req, nil)
}
