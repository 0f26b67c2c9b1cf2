package upstream

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hivelabs/hivemon/pkg/log"
	"github.com/hivelabs/hivemon/pkg/metrics"
	"github.com/hivelabs/hivemon/pkg/types"
	"github.com/rs/zerolog"
)

// Config holds the connection settings for one cluster API endpoint
type Config struct {
	// BaseURL is the API root, e.g. "https://pve.example.com:8006"
	BaseURL string

	// TokenID and Secret form the API token credential
	TokenID string
	Secret  string

	// SkipTLSVerify disables certificate verification for this client
	// only. The TLS policy is always per-instance; two clients with
	// different policies never interfere.
	SkipTLSVerify bool

	// RequestTimeout bounds every upstream call so a stuck upstream
	// cannot stall a poll cycle (default: 10s)
	RequestTimeout time.Duration
}

// Client issues authenticated requests to a PVE-compatible cluster
// management API and returns typed snapshots
type Client struct {
	baseURL    *url.URL
	authHeader string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a new upstream API client. Each client owns its
// own http.Client and transport; no process-wide TLS state is touched.
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q in base url", base.Scheme)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 4,
	}
	if cfg.SkipTLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- explicit per-instance opt-in
	}

	c := &Client{
		baseURL: base,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		logger: log.WithComponent("upstream"),
	}
	if cfg.TokenID != "" {
		c.authHeader = fmt.Sprintf("PVEAPIToken=%s=%s", cfg.TokenID, cfg.Secret)
	}
	return c, nil
}

// envelope is the upstream API response wrapper
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// nodeRecord is one entry of the upstream node listing
type nodeRecord struct {
	Node    string   `json:"node"`
	Status  string   `json:"status"`
	Uptime  int64    `json:"uptime"`
	CPU     *float64 `json:"cpu"`
	Mem     *int64   `json:"mem"`
	MaxMem  *int64   `json:"maxmem"`
	Disk    *int64   `json:"disk"`
	MaxDisk *int64   `json:"maxdisk"`
}

// rrdRecord is one sample of the upstream rrddata response
type rrdRecord struct {
	Time     int64   `json:"time"`
	CPU      float64 `json:"cpu"`
	MemUsed  float64 `json:"memused"`
	MemTotal float64 `json:"memtotal"`
	NetIn    float64 `json:"netin"`
	NetOut   float64 `json:"netout"`
}

// ClusterSummary fetches the node listing and normalizes it into a
// validated snapshot
func (c *Client) ClusterSummary(ctx context.Context) (types.ClusterSnapshot, error) {
	var records []nodeRecord
	if err := c.get(ctx, "cluster_summary", "/api2/json/nodes", nil, &records); err != nil {
		return types.ClusterSnapshot{}, err
	}

	snap := types.ClusterSnapshot{
		TakenAt: time.Now(),
		Nodes:   make([]types.NodeSummary, 0, len(records)),
	}
	for _, r := range records {
		snap.Nodes = append(snap.Nodes, normalizeNode(r))
	}

	if err := snap.Validate(); err != nil {
		return types.ClusterSnapshot{}, fmt.Errorf("upstream returned invalid snapshot: %w", err)
	}
	return snap, nil
}

// NodeMetrics fetches a metrics series for one node covering roughly
// rangeSeconds of history. The upstream only supports fixed timeframes,
// so the smallest timeframe covering the requested range is used.
func (c *Client) NodeMetrics(ctx context.Context, node string, rangeSeconds int) (types.MetricsSeries, error) {
	if node == "" {
		return types.MetricsSeries{}, fmt.Errorf("node name is required")
	}

	query := url.Values{}
	query.Set("timeframe", timeframeFor(rangeSeconds))

	var records []rrdRecord
	path := "/api2/json/nodes/" + url.PathEscape(node) + "/rrddata"
	if err := c.get(ctx, "node_metrics", path, query, &records); err != nil {
		return types.MetricsSeries{}, err
	}

	series := types.MetricsSeries{
		Node:         node,
		RangeSeconds: rangeSeconds,
		Points:       make([]types.MetricPoint, 0, len(records)),
	}
	cutoff := time.Now().Add(-time.Duration(rangeSeconds) * time.Second)
	for _, r := range records {
		ts := time.Unix(r.Time, 0)
		if ts.Before(cutoff) {
			continue
		}
		series.Points = append(series.Points, types.MetricPoint{
			Time:        ts,
			CPU:         r.CPU,
			MemoryUsed:  int64(r.MemUsed),
			MemoryTotal: int64(r.MemTotal),
			NetIn:       int64(r.NetIn),
			NetOut:      int64(r.NetOut),
		})
	}
	return series, nil
}

// get issues one GET request and decodes the data envelope into out
func (c *Client) get(ctx context.Context, operation, path string, query url.Values, out interface{}) error {
	u := *c.baseURL
	u.Path = path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(operation, "error").Inc()
		return fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	metrics.UpstreamRequestsTotal.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upstream returned HTTP %d for %s", resp.StatusCode, path)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode upstream response: %w", err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode upstream payload: %w", err)
	}

	c.logger.Debug().Str("path", path).Msg("upstream request complete")
	return nil
}

// normalizeNode converts an upstream node record into a NodeSummary,
// mapping unrecognized statuses to unknown and clamping the cpu
// fraction into [0,1]
func normalizeNode(r nodeRecord) types.NodeSummary {
	n := types.NodeSummary{
		Name:          r.Node,
		UptimeSeconds: r.Uptime,
	}

	switch types.NodeStatus(r.Status) {
	case types.NodeStatusOnline:
		n.Status = types.NodeStatusOnline
	case types.NodeStatusOffline:
		n.Status = types.NodeStatusOffline
	default:
		nodeLogger := log.WithNode(r.Node)
		nodeLogger.Debug().Str("status", r.Status).Msg("unrecognized node status, mapping to unknown")
		n.Status = types.NodeStatusUnknown
	}

	if r.CPU != nil {
		cpu := *r.CPU
		if cpu < 0 {
			cpu = 0
		}
		if cpu > 1 {
			cpu = 1
		}
		n.CPU = &cpu
	}
	if r.Mem != nil && r.MaxMem != nil && *r.MaxMem > 0 {
		used := *r.Mem
		if used > *r.MaxMem {
			used = *r.MaxMem
		}
		n.Memory = &types.ResourceUsage{Used: used, Total: *r.MaxMem}
	}
	if r.Disk != nil && r.MaxDisk != nil && *r.MaxDisk > 0 {
		used := *r.Disk
		if used > *r.MaxDisk {
			used = *r.MaxDisk
		}
		n.Storage = &types.ResourceUsage{Used: used, Total: *r.MaxDisk}
	}
	return n
}

// timeframeFor maps a seconds range onto the fixed upstream timeframes
func timeframeFor(rangeSeconds int) string {
	switch {
	case rangeSeconds <= 3600:
		return "hour"
	case rangeSeconds <= 86400:
		return "day"
	case rangeSeconds <= 7*86400:
		return "week"
	default:
		return "month"
	}
}
