package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/open-alumni/portal-api/internal/models"
	"github.com/open-alumni/portal-api/pkg/config"
	appErrors "github.com/open-alumni/portal-api/pkg/errors"
)

// RegistryGateway reads alumni data from the external academic registry.
type RegistryGateway interface {
	GetTranscript(ctx context.Context, registryKey string) (string, []models.Qualification, error)
	SearchExpectedGraduates(ctx context.Context, filter models.GraduateFilter) (*models.PagedGraduates, error)
	GetAcademicCalendar(ctx context.Context, year int) ([]models.CalendarItem, error)
}

// HTTPRegistryGateway talks to the registry over its JSON API.
type HTTPRegistryGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPRegistryGateway constructs the gateway from configuration.
func NewHTTPRegistryGateway(cfg config.RegistryConfig, logger *zap.Logger) *HTTPRegistryGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPRegistryGateway{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type transcriptResponse struct {
	FullName       string                 `json:"full_name"`
	Qualifications []models.Qualification `json:"qualifications"`
}

// GetTranscript fetches the full name and qualification rows for a registry
// key. A 404 from the registry maps to the dedicated not-found error so
// onboarding can distinguish it from transport failures.
func (g *HTTPRegistryGateway) GetTranscript(ctx context.Context, registryKey string) (string, []models.Qualification, error) {
	endpoint := fmt.Sprintf("%s/transcripts/%s", g.baseURL, url.PathEscape(registryKey))
	var payload transcriptResponse
	if err := g.getJSON(ctx, endpoint, nil, &payload); err != nil {
		return "", nil, err
	}
	return payload.FullName, payload.Qualifications, nil
}

// SearchExpectedGraduates queries the registry for upcoming alumni.
func (g *HTTPRegistryGateway) SearchExpectedGraduates(ctx context.Context, filter models.GraduateFilter) (*models.PagedGraduates, error) {
	query := url.Values{}
	if filter.Major != "" {
		query.Set("major", filter.Major)
	}
	if filter.GraduationYear > 0 {
		query.Set("graduation_year", strconv.Itoa(filter.GraduationYear))
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(size))

	endpoint := fmt.Sprintf("%s/graduates/expected", g.baseURL)
	var payload models.PagedGraduates
	if err := g.getJSON(ctx, endpoint, query, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// GetAcademicCalendar fetches the registry's calendar for a year.
func (g *HTTPRegistryGateway) GetAcademicCalendar(ctx context.Context, year int) ([]models.CalendarItem, error) {
	query := url.Values{}
	query.Set("year", strconv.Itoa(year))
	endpoint := fmt.Sprintf("%s/calendar", g.baseURL)
	var payload struct {
		Items []models.CalendarItem `json:"items"`
	}
	if err := g.getJSON(ctx, endpoint, query, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

func (g *HTTPRegistryGateway) getJSON(ctx context.Context, endpoint string, query url.Values, dest interface{}) error {
	if len(query) > 0 {
		endpoint = endpoint + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build registry request: %w", err)
	}
	if g.apiKey != "" {
		req.Header.Set("X-API-Key", g.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("call registry: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return appErrors.ErrNotFoundInRegistry
	case resp.StatusCode >= 400:
		g.logger.Warn("registry returned error status",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("registry status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode registry response: %w", err)
	}
	return nil
}
