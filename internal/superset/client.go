package superset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const datasetPageSize = 100

// Options configures a Client
type Options struct {
	BaseURL       string
	ExternalURL   string
	AdminUser     string
	AdminPassword string
	Timeout       time.Duration
	SessionTTL    time.Duration
}

// Client talks to the Superset REST API.
//
// Calls made with a caller token are scoped by Superset's RBAC for that user.
// Calls made with an empty token use the admin service session (login + CSRF),
// which lives on a separate cookie-carrying http.Client so that its session
// cookie is never attached to caller requests.
type Client struct {
	baseURL     string
	externalURL string
	username    string
	password    string
	sessionTTL  time.Duration

	userHTTP  *http.Client
	adminHTTP *http.Client

	mu    sync.Mutex
	admin *adminSession
	now   func() time.Time
}

type adminSession struct {
	accessToken string
	csrfToken   string
	obtainedAt  time.Time
}

// NewClient creates a new Superset client
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	jar, _ := cookiejar.New(nil)
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	externalURL := strings.TrimRight(opts.ExternalURL, "/")
	if externalURL == "" {
		externalURL = baseURL
	}

	return &Client{
		baseURL:     baseURL,
		externalURL: externalURL,
		username:    opts.AdminUser,
		password:    opts.AdminPassword,
		sessionTTL:  ttl,
		userHTTP:    &http.Client{Timeout: timeout},
		adminHTTP:   &http.Client{Timeout: timeout, Jar: jar},
		now:         time.Now,
	}
}

// DashboardURL returns the browser-facing address of a dashboard
func (c *Client) DashboardURL(id int) string {
	return fmt.Sprintf("%s/superset/dashboard/%d/", c.externalURL, id)
}

// Ping checks that Superset answers its health endpoint
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.userHTTP.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: "health check failed"}
	}
	return nil
}

// Me returns the user the token belongs to
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	var out resultEnvelope[User]
	if err := c.do(ctx, http.MethodGet, "/api/v1/me/", token, nil, &out); err != nil {
		return nil, err
	}
	return &out.Result, nil
}

// ListDatasets returns every dataset visible to token. An empty token lists
// the admin catalog.
func (c *Client) ListDatasets(ctx context.Context, token string) ([]DatasetSummary, error) {
	var all []DatasetSummary
	for page := 0; ; page++ {
		q := url.Values{}
		q.Set("q", fmt.Sprintf("(page:%d,page_size:%d)", page, datasetPageSize))

		var out listEnvelope[DatasetSummary]
		if err := c.do(ctx, http.MethodGet, "/api/v1/dataset/?"+q.Encode(), token, nil, &out); err != nil {
			return nil, err
		}

		all = append(all, out.Result...)
		if len(out.Result) < datasetPageSize || (out.Count > 0 && len(all) >= out.Count) {
			return all, nil
		}
	}
}

// GetDataset returns a dataset with its columns
func (c *Client) GetDataset(ctx context.Context, token string, id int) (*DatasetDetail, error) {
	var out resultEnvelope[DatasetDetail]
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/dataset/%d", id), token, nil, &out); err != nil {
		return nil, err
	}
	if out.Result.ID == 0 {
		out.Result.ID = id
	}
	return &out.Result, nil
}

// CreateChart creates a chart with the admin session and returns its id
func (c *Client) CreateChart(ctx context.Context, chart ChartCreate) (int, error) {
	var out createdEnvelope
	if err := c.do(ctx, http.MethodPost, "/api/v1/chart/", "", chart, &out); err != nil {
		return 0, err
	}
	if out.ID == 0 {
		return 0, fmt.Errorf("superset returned no chart id")
	}
	return out.ID, nil
}

// GetChart reads a chart with the admin session
func (c *Client) GetChart(ctx context.Context, id int) (*Chart, error) {
	var out resultEnvelope[Chart]
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/chart/%d", id), "", nil, &out); err != nil {
		return nil, err
	}
	if out.Result.ID == 0 {
		out.Result.ID = id
	}
	return &out.Result, nil
}

// UpdateChart applies a partial update to a chart
func (c *Client) UpdateChart(ctx context.Context, id int, update ChartUpdate) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/v1/chart/%d", id), "", update, nil)
}

// CreateDashboard creates a dashboard with the admin session and returns its id
func (c *Client) CreateDashboard(ctx context.Context, dashboard DashboardCreate) (int, error) {
	var out createdEnvelope
	if err := c.do(ctx, http.MethodPost, "/api/v1/dashboard/", "", dashboard, &out); err != nil {
		return 0, err
	}
	if out.ID == 0 {
		return 0, fmt.Errorf("superset returned no dashboard id")
	}
	return out.ID, nil
}

// UpdateDashboard applies a partial update to a dashboard
func (c *Client) UpdateDashboard(ctx context.Context, id int, update DashboardUpdate) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/v1/dashboard/%d", id), "", update, nil)
}

// DashboardCharts returns the ids of charts placed on a dashboard
func (c *Client) DashboardCharts(ctx context.Context, dashboardID int) ([]int, error) {
	var out resultEnvelope[[]ref]
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/dashboard/%d/charts", dashboardID), "", nil, &out); err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(out.Result))
	for _, r := range out.Result {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	err := c.send(ctx, method, path, token, body, out)
	if token == "" && errors.Is(err, ErrUnauthorized) {
		// The admin session may have been revoked server-side; log in again once.
		c.resetAdminSession()
		err = c.send(ctx, method, path, token, body, out)
	}
	return err
}

func (c *Client) send(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.userHTTP
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		sess, err := c.adminSession(ctx)
		if err != nil {
			return err
		}
		httpClient = c.adminHTTP
		req.Header.Set("Authorization", "Bearer "+sess.accessToken)
		if method != http.MethodGet {
			req.Header.Set("X-CSRFToken", sess.csrfToken)
			req.Header.Set("Referer", c.baseURL)
		}
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("superset request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s returned HTTP %d", ErrUnauthorized, method, path, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) adminSession(ctx context.Context) (*adminSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.admin != nil && c.now().Sub(c.admin.obtainedAt) < c.sessionTTL {
		return c.admin, nil
	}

	sess, err := c.login(ctx)
	if err != nil {
		return nil, err
	}
	c.admin = sess
	log.Debug().Str("user", c.username).Msg("Superset admin session established")
	return sess, nil
}

func (c *Client) resetAdminSession() {
	c.mu.Lock()
	c.admin = nil
	c.mu.Unlock()
}

func (c *Client) login(ctx context.Context) (*adminSession, error) {
	payload, _ := json.Marshal(map[string]any{
		"username": c.username,
		"password": c.password,
		"provider": "db",
		"refresh":  true,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/security/login", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var login struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.adminRoundTrip(req, &login); err != nil {
		return nil, fmt.Errorf("admin login failed: %w", err)
	}
	if login.AccessToken == "" {
		return nil, fmt.Errorf("admin login failed: no access token")
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/security/csrf_token/", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create csrf request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)

	var csrf resultEnvelope[string]
	if err := c.adminRoundTrip(req, &csrf); err != nil {
		return nil, fmt.Errorf("failed to fetch csrf token: %w", err)
	}

	return &adminSession{
		accessToken: login.AccessToken,
		csrfToken:   csrf.Result,
		obtainedAt:  c.now(),
	}, nil
}

func (c *Client) adminRoundTrip(req *http.Request, out any) error {
	resp, err := c.adminHTTP.Do(req)
	if err != nil {
		return fmt.Errorf("superset request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	return json.Unmarshal(body, out)
}
