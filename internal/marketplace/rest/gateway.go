// Package rest talks to the marketplace over JSON/HTTP. Requests carry an
// OAuth2 client-credentials token that is refreshed before it expires, and a
// circuit breaker stops calling the upstream while it keeps failing.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/jonesrussell/north-cloud/relister/internal/circuitbreaker"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxErrorBodyBytes     = 4096
)

var errBaseURLRequired = errors.New("marketplace base_url is required")

// Config configures the HTTP gateway.
type Config struct {
	BaseURL        string                `yaml:"base_url"        env:"MARKETPLACE_BASE_URL"`
	TokenURL       string                `yaml:"token_url"       env:"MARKETPLACE_TOKEN_URL"`
	ClientID       string                `yaml:"client_id"       env:"MARKETPLACE_CLIENT_ID"`
	ClientSecret   string                `yaml:"client_secret"   env:"MARKETPLACE_CLIENT_SECRET"`
	Scopes         []string              `yaml:"scopes"`
	RequestTimeout time.Duration         `yaml:"request_timeout" env:"MARKETPLACE_REQUEST_TIMEOUT"`
	Breaker        circuitbreaker.Config `yaml:"breaker"`
}

// Gateway implements marketplace.Gateway over HTTP.
type Gateway struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.Breaker
	logger  logger.Logger
}

var _ marketplace.Gateway = (*Gateway)(nil)

// New builds the gateway. Without a token URL requests are sent
// unauthenticated, which is only useful against a local stub.
func New(cfg Config, log logger.Logger) (*Gateway, error) {
	if cfg.BaseURL == "" {
		return nil, errBaseURLRequired
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	base := &http.Client{Timeout: cfg.RequestTimeout}
	client := base
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		// The token source caches the token and fetches a new one shortly
		// before expiry.
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		client = oauth2.NewClient(tokenCtx, cc.TokenSource(tokenCtx))
		client.Timeout = cfg.RequestTimeout
	}

	breakerCfg := cfg.Breaker
	breakerCfg.IsFailure = func(err error) bool {
		return errors.Is(err, marketplace.ErrTransient)
	}
	breakerCfg.OnStateChange = func(from, to circuitbreaker.State) {
		log.Warn("Marketplace circuit breaker state changed",
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}

	return &Gateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
		breaker: circuitbreaker.New(breakerCfg),
		logger:  log,
	}, nil
}

// BreakerState exposes the breaker for health reporting.
func (g *Gateway) BreakerState() circuitbreaker.State {
	return g.breaker.State()
}

type statsResponse struct {
	Views      int `json:"views"`
	Watchers   int `json:"watchers"`
	DaysActive int `json:"days_active"`
}

type watchersResponse struct {
	Watchers []string `json:"watchers"`
}

type priceRequest struct {
	Price decimal.Decimal `json:"price"`
}

type createResponse struct {
	ExternalID string `json:"external_id"`
}

type offerRequest struct {
	BuyerID string          `json:"buyer_id"`
	Price   decimal.Decimal `json:"price"`
}

type offerResponse struct {
	OfferID string `json:"offer_id"`
}

type handlingRequest struct {
	Days int `json:"days"`
}

func itemPath(externalID string, parts ...string) string {
	return "/items/" + url.PathEscape(externalID) + strings.Join(parts, "")
}

// GetListingStats fetches GET /items/{id}/stats.
func (g *Gateway) GetListingStats(ctx context.Context, externalID string) (marketplace.Stats, error) {
	var resp statsResponse
	if err := g.do(ctx, "get_listing_stats", http.MethodGet, itemPath(externalID, "/stats"), nil, &resp); err != nil {
		return marketplace.Stats{}, err
	}
	return marketplace.Stats{Views: resp.Views, Watchers: resp.Watchers, DaysActive: resp.DaysActive}, nil
}

// GetWatchers fetches GET /items/{id}/watchers.
func (g *Gateway) GetWatchers(ctx context.Context, externalID string) ([]string, error) {
	var resp watchersResponse
	if err := g.do(ctx, "get_watchers", http.MethodGet, itemPath(externalID, "/watchers"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Watchers, nil
}

// UpdatePrice sends PUT /items/{id}/price.
func (g *Gateway) UpdatePrice(ctx context.Context, externalID string, price decimal.Decimal) error {
	return g.do(ctx, "update_price", http.MethodPut, itemPath(externalID, "/price"), priceRequest{Price: price}, nil)
}

// EndItem treats 409 Conflict as "already ended".
func (g *Gateway) EndItem(ctx context.Context, externalID string) error {
	err := g.do(ctx, "end_item", http.MethodPost, itemPath(externalID, "/end"), nil, nil)
	var mErr *marketplace.Error
	if errors.As(err, &mErr) && mErr.StatusCode == http.StatusConflict {
		return nil
	}
	return err
}

// CreateItem sends POST /items and returns the new external id.
func (g *Gateway) CreateItem(ctx context.Context, draft marketplace.Draft) (string, error) {
	var resp createResponse
	if err := g.do(ctx, "create_item", http.MethodPost, "/items", draft, &resp); err != nil {
		return "", err
	}
	if resp.ExternalID == "" {
		return "", marketplace.Permanent("create_item", errors.New("response missing external_id"))
	}
	return resp.ExternalID, nil
}

// RotatePhotos sends POST /items/{id}/photos/rotate.
func (g *Gateway) RotatePhotos(ctx context.Context, externalID string) error {
	return g.do(ctx, "rotate_photos", http.MethodPost, itemPath(externalID, "/photos/rotate"), nil, nil)
}

// SendOffer sends POST /items/{id}/offers.
func (g *Gateway) SendOffer(ctx context.Context, externalID, buyerID string, price decimal.Decimal) (string, error) {
	var resp offerResponse
	body := offerRequest{BuyerID: buyerID, Price: price}
	if err := g.do(ctx, "send_offer", http.MethodPost, itemPath(externalID, "/offers"), body, &resp); err != nil {
		return "", err
	}
	return resp.OfferID, nil
}

// EvaluateIncomingOffer fetches GET /offers/{id}.
func (g *Gateway) EvaluateIncomingOffer(ctx context.Context, offerID string) (marketplace.IncomingOffer, error) {
	var offer marketplace.IncomingOffer
	err := g.do(ctx, "evaluate_incoming_offer", http.MethodGet, "/offers/"+url.PathEscape(offerID), nil, &offer)
	return offer, err
}

// RespondToOffer sends POST /offers/{id}/response.
func (g *Gateway) RespondToOffer(ctx context.Context, offerID string, resp marketplace.Response) error {
	return g.do(ctx, "respond_to_offer", http.MethodPost, "/offers/"+url.PathEscape(offerID)+"/response", resp, nil)
}

// UpdateHandlingTime sends PUT /items/{id}/handling.
func (g *Gateway) UpdateHandlingTime(ctx context.Context, externalID string, days int) error {
	return g.do(ctx, "update_handling_time", http.MethodPut, itemPath(externalID, "/handling"), handlingRequest{Days: days}, nil)
}

// do sends one request through the breaker and classifies the outcome.
func (g *Gateway) do(ctx context.Context, op, method, path string, body, out any) error {
	err := g.breaker.Execute(func() error {
		return g.roundTrip(ctx, op, method, path, body, out)
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return marketplace.Transient(op, err)
	}
	return err
}

func (g *Gateway) roundTrip(ctx context.Context, op, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return marketplace.Permanent(op, fmt.Errorf("failed to marshal request: %w", err))
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, bodyReader)
	if err != nil {
		return marketplace.Permanent(op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return classifyTransportError(ctx, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &marketplace.Error{
			Op:         op,
			Kind:       marketplace.KindForStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Err:        errors.New(errorMessage(resp)),
		}
	}

	if out == nil {
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return marketplace.Transient(op, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// errorMessage returns the start of an error response body, or the status
// text when the body is empty or cannot be read.
func errorMessage(resp *http.Response) string {
	fallback := http.StatusText(resp.StatusCode)
	snippet, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return fmt.Sprintf("%s (failed to read body: %v)", fallback, err)
	}
	if msg := strings.TrimSpace(string(snippet)); msg != "" {
		return msg
	}
	return fallback
}

func classifyTransportError(ctx context.Context, op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		if status >= http.StatusInternalServerError {
			return &marketplace.Error{Op: op, Kind: marketplace.KindTransient, StatusCode: status, Err: err}
		}
		return &marketplace.Error{Op: op, Kind: marketplace.KindAuth, StatusCode: status, Err: err}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return marketplace.Transient(op, err)
}
