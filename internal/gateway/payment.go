package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/open-alumni/portal-api/pkg/config"
)

// ChargeRequest asks the gateway to collect the outstanding share of a
// request. Amounts are in minor currency units.
type ChargeRequest struct {
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	MemberID  string `json:"member_id"`
}

// ChargeResponse carries the gateway's reference and redirect target.
type ChargeResponse struct {
	GatewayRef  string `json:"gateway_ref"`
	RedirectURL string `json:"redirect_url"`
}

// PaymentGateway initiates external charges.
type PaymentGateway interface {
	CreateCharge(ctx context.Context, charge ChargeRequest) (*ChargeResponse, error)
}

// HTTPPaymentGateway posts charge requests to the payment provider. Calls run
// through a circuit breaker so a degraded provider fails fast instead of
// stacking up slow requests.
type HTTPPaymentGateway struct {
	baseURL     string
	merchantKey string
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker
	logger      *zap.Logger
}

// NewHTTPPaymentGateway constructs the gateway from configuration.
func NewHTTPPaymentGateway(cfg config.PaymentsConfig, logger *zap.Logger) *HTTPPaymentGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxFailures := uint32(cfg.BreakerMaxFail)
	if maxFailures == 0 {
		maxFailures = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "payment-gateway",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("payment gateway breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &HTTPPaymentGateway{
		baseURL:     cfg.GatewayURL,
		merchantKey: cfg.MerchantKey,
		client:      &http.Client{Timeout: timeout},
		breaker:     breaker,
		logger:      logger,
	}
}

// CreateCharge asks the provider to collect the given amount.
func (g *HTTPPaymentGateway) CreateCharge(ctx context.Context, charge ChargeRequest) (*ChargeResponse, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.createCharge(ctx, charge)
	})
	if err != nil {
		return nil, err
	}
	return result.(*ChargeResponse), nil
}

func (g *HTTPPaymentGateway) createCharge(ctx context.Context, charge ChargeRequest) (*ChargeResponse, error) {
	payload, err := json.Marshal(charge)
	if err != nil {
		return nil, fmt.Errorf("marshal charge request: %w", err)
	}

	endpoint := g.baseURL + "/charges"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build charge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.merchantKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		g.logger.Warn("payment gateway rejected charge",
			zap.String("reference", charge.Reference),
			zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("payment gateway status %d", resp.StatusCode)
	}

	var response ChargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode charge response: %w", err)
	}
	if response.GatewayRef == "" {
		return nil, fmt.Errorf("payment gateway returned empty reference")
	}
	return &response, nil
}
