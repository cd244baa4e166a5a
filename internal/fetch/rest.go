package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/grid-monitor/dashboard/internal/models"
)

// RESTClient issues authenticated HTTP calls against the backend's
// versioned REST endpoints. One call per resource fetch; no retries —
// retry policy belongs to callers, not the transport.
type RESTClient struct {
	http      *resty.Client
	statsPath string
	logger    *zap.Logger
}

// NewRESTClient creates a REST transport bound to the upstream base URL
// (including the /api prefix). statsPath selects between the /sensors/stats
// and /stats deployments; empty means /sensors/stats.
func NewRESTClient(baseURL, statsPath string, timeout time.Duration, logger *zap.Logger) *RESTClient {
	if statsPath == "" {
		statsPath = "/sensors/stats"
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &RESTClient{
		http:      client,
		statsPath: statsPath,
		logger:    logger,
	}
}

// BaseURL returns the configured upstream base URL.
func (c *RESTClient) BaseURL() string {
	return c.http.BaseURL
}

// get runs an authenticated GET and decodes a 2xx body into out.
func (c *RESTClient) get(ctx context.Context, token, path string, query map[string]string, out any) error {
	req := c.http.R().SetContext(ctx)
	if token != "" {
		req.SetAuthToken(token)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Get(path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	return c.classify(resp, path)
}

// post runs an authenticated POST and decodes a 2xx body into out.
func (c *RESTClient) post(ctx context.Context, token, path string, query map[string]string, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if token != "" {
		req.SetAuthToken(token)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Post(path)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	return c.classify(resp, path)
}

// classify maps HTTP status codes onto the shared error taxonomy. A 401
// becomes ErrTokenExpired — the same sentinel the GraphQL transport uses —
// so expiry is detected uniformly across transports.
func (c *RESTClient) classify(resp *resty.Response, path string) error {
	switch {
	case resp.StatusCode() == http.StatusUnauthorized:
		c.logger.Warn("upstream rejected token", zap.String("path", path))
		return ErrTokenExpired
	case resp.IsSuccess():
		return nil
	default:
		return &HTTPError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}
}

// loginResponse is the backend's token grant.
type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges credentials for a bearer token via the form-encoded
// OAuth2 password flow the backend exposes.
func (c *RESTClient) Login(ctx context.Context, username, password string) (string, error) {
	var grant loginResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"username": username,
			"password": password,
		}).
		SetResult(&grant).
		Post("/auth/login")
	if err != nil {
		return "", fmt.Errorf("POST /auth/login: %w", err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return "", ErrTokenExpired
	}
	if !resp.IsSuccess() {
		return "", &HTTPError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	if grant.AccessToken == "" {
		return "", invalidData("login response missing access_token")
	}
	return grant.AccessToken, nil
}

// Profile fetches the authenticated user's profile.
func (c *RESTClient) Profile(ctx context.Context, token string) (map[string]any, error) {
	var profile map[string]any
	if err := c.get(ctx, token, "/auth/me", nil, &profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// Voltage fetches recent voltage readings. limit and sensorID map straight
// onto the endpoint's query parameters.
func (c *RESTClient) Voltage(ctx context.Context, token string, limit int, sensorID string) ([]models.VoltageReading, error) {
	query := map[string]string{"limit": strconv.Itoa(limit)}
	if sensorID != "" {
		query["sensor_id"] = sensorID
	}
	var readings []models.VoltageReading
	if err := c.get(ctx, token, "/sensors/voltage", query, &readings); err != nil {
		return nil, err
	}
	return readings, nil
}

// PowerQuality fetches recent power-quality metrics.
func (c *RESTClient) PowerQuality(ctx context.Context, token string, limit int, sensorID string) ([]models.PowerQualityMetric, error) {
	query := map[string]string{"limit": strconv.Itoa(limit)}
	if sensorID != "" {
		query["sensor_id"] = sensorID
	}
	var metrics []models.PowerQualityMetric
	if err := c.get(ctx, token, "/sensors/power-quality", query, &metrics); err != nil {
		return nil, err
	}
	return metrics, nil
}

// RecentFaults fetches the fixed recent-faults window. The endpoint takes
// no query parameters; limit/severity filtering exists only on the GraphQL
// path. Known asymmetry, kept as observed.
func (c *RESTClient) RecentFaults(ctx context.Context, token string) ([]models.FaultEvent, error) {
	var faults []models.FaultEvent
	if err := c.get(ctx, token, "/faults/recent", nil, &faults); err != nil {
		return nil, err
	}
	return faults, nil
}

// Stats fetches the fleet-wide statistics record.
func (c *RESTClient) Stats(ctx context.Context, token string) (*models.FleetStats, error) {
	var stats models.FleetStats
	if err := c.get(ctx, token, c.statsPath, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// SensorStatus fetches the per-sensor health snapshots.
func (c *RESTClient) SensorStatus(ctx context.Context, token string) ([]models.SensorStatus, error) {
	var statuses []models.SensorStatus
	if err := c.get(ctx, token, "/sensors/status", nil, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// IngestVoltage posts one voltage reading to the backend.
func (c *RESTClient) IngestVoltage(ctx context.Context, token string, reading models.VoltageReading) (*models.VoltageReading, error) {
	var stored models.VoltageReading
	if err := c.post(ctx, token, "/sensors/voltage", nil, reading, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// IngestPowerQuality posts one power-quality sample to the backend.
func (c *RESTClient) IngestPowerQuality(ctx context.Context, token string, metric models.PowerQualityMetric) (*models.PowerQualityMetric, error) {
	var stored models.PowerQualityMetric
	if err := c.post(ctx, token, "/sensors/power-quality", nil, metric, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// IngestFault posts one fault event to the backend.
func (c *RESTClient) IngestFault(ctx context.Context, token string, fault models.FaultEvent) (*models.FaultEvent, error) {
	var stored models.FaultEvent
	if err := c.post(ctx, token, "/faults", nil, fault, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// ExportVoltage asks the backend to archive voltage history to S3.
func (c *RESTClient) ExportVoltage(ctx context.Context, token string, hours int) (*models.ExportResult, error) {
	var result models.ExportResult
	query := map[string]string{"hours": strconv.Itoa(hours)}
	if err := c.post(ctx, token, "/export/voltage", query, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExportFaults asks the backend to archive fault history to S3.
func (c *RESTClient) ExportFaults(ctx context.Context, token string, hours int) (*models.ExportResult, error) {
	var result models.ExportResult
	query := map[string]string{"hours": strconv.Itoa(hours)}
	if err := c.post(ctx, token, "/export/faults", query, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListExports fetches the archive listing.
func (c *RESTClient) ListExports(ctx context.Context, token string) (*models.ExportListing, error) {
	var listing models.ExportListing
	if err := c.get(ctx, token, "/export/list", nil, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

// ExportURL fetches a presigned download URL for one archived export.
func (c *RESTClient) ExportURL(ctx context.Context, token, key string) (*models.PresignedURL, error) {
	var presigned models.PresignedURL
	if err := c.get(ctx, token, "/export/"+key, nil, &presigned); err != nil {
		return nil, err
	}
	return &presigned, nil
}

// Populate asks the backend to generate historical test data.
func (c *RESTClient) Populate(ctx context.Context, token string, hours int) (map[string]any, error) {
	var result map[string]any
	query := map[string]string{"hours": strconv.Itoa(hours)}
	if err := c.post(ctx, token, "/simulate/populate", query, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Health probes the backend's health endpoint without authentication.
func (c *RESTClient) Health(ctx context.Context) error {
	return c.get(ctx, "", "/health", nil, nil)
}
