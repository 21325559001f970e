package influxdb

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	api "github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/plugin"
)

// PluginTag identifies points written by this service.
const PluginTag = "sinusoid"

// Config maps the connection details required to reach InfluxDB.
type Config struct {
	URL     string
	Token   string
	Org     string
	Bucket  string
	Timeout time.Duration
}

// FromEnv loads configuration values from environment variables.
// INFLUX_URL, INFLUX_TOKEN, INFLUX_ORG, and INFLUX_BUCKET are required.
// INFLUX_TIMEOUT is optional and defaults to 5s when not provided.
func FromEnv() (Config, error) {
	cfg := Config{
		URL:    os.Getenv("INFLUX_URL"),
		Token:  os.Getenv("INFLUX_TOKEN"),
		Org:    os.Getenv("INFLUX_ORG"),
		Bucket: os.Getenv("INFLUX_BUCKET"),
	}

	if cfg.URL == "" || cfg.Token == "" || cfg.Org == "" || cfg.Bucket == "" {
		return Config{}, fmt.Errorf("missing InfluxDB configuration, ensure INFLUX_URL, INFLUX_TOKEN, INFLUX_ORG, and INFLUX_BUCKET are set")
	}

	timeout := os.Getenv("INFLUX_TIMEOUT")
	switch {
	case timeout == "":
		cfg.Timeout = 5 * time.Second
	default:
		dur, err := time.ParseDuration(timeout)
		if err != nil {
			return Config{}, fmt.Errorf("invalid INFLUX_TIMEOUT: %w", err)
		}
		cfg.Timeout = dur
	}

	return cfg, nil
}

// Client wraps the InfluxDB client with project-specific defaults.
type Client struct {
	cfg    Config
	client influxdb2.Client
}

// StoredReading is one reading read back from InfluxDB, with its fields
// pivoted into a single row.
type StoredReading struct {
	Time     time.Time        `json:"time"`
	Asset    string           `json:"asset"`
	Readings map[string]int64 `json:"readings"`
}

// New establishes a new InfluxDB client based on the provided configuration.
// A ping is issued to ensure the connection is healthy before returning.
func New(ctx context.Context, cfg Config) (*Client, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctxPing := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctxPing, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	ok, err := client.Ping(ctxPing)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ping InfluxDB: %w", err)
	}
	if !ok {
		client.Close()
		return nil, fmt.Errorf("influxdb ping failed")
	}

	return &Client{cfg: cfg, client: client}, nil
}

// WriteAPI returns the blocking write API bound to the configured org and bucket.
func (c *Client) WriteAPI() api.WriteAPIBlocking {
	return c.client.WriteAPIBlocking(c.cfg.Org, c.cfg.Bucket)
}

// QueryAPI returns the query API bound to the configured org.
func (c *Client) QueryAPI() api.QueryAPI {
	return c.client.QueryAPI(c.cfg.Org)
}

// Config exposes the immutable client configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Name identifies the client when used as a reading sink.
func (c *Client) Name() string { return "influxdb" }

// WriteReading stores one reading as a point.
func (c *Client) WriteReading(ctx context.Context, r plugin.Reading) error {
	if err := c.WriteAPI().WritePoint(ctx, NewReadingPoint(r)); err != nil {
		return fmt.Errorf("write influx point: %w", err)
	}
	return nil
}

// NewReadingPoint converts a reading into a point whose measurement is the
// asset name. Every reading key becomes a field.
func NewReadingPoint(r plugin.Reading) *write.Point {
	fields := make(map[string]interface{}, len(r.Readings))
	for k, v := range r.Readings {
		fields[k] = v
	}
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return influxdb2.NewPoint(r.Asset, map[string]string{"plugin": PluginTag}, fields, ts)
}

// RecentReadings fetches the newest readings for asset within the lookback
// window, newest first.
func (c *Client) RecentReadings(ctx context.Context, asset string, lookback time.Duration, limit int) ([]StoredReading, error) {
	if strings.TrimSpace(asset) == "" {
		return nil, fmt.Errorf("asset is required")
	}

	result, err := c.QueryAPI().Query(ctx, recentReadingsQuery(c.cfg.Bucket, asset, lookback, limit))
	if err != nil {
		return nil, fmt.Errorf("query influx: %w", err)
	}
	defer result.Close()

	readings := make([]StoredReading, 0, max(limit, 0))
	for result.Next() {
		readings = append(readings, pivotedReading(asset, result.Record().Time(), result.Record().Values()))
	}

	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("iterate influx result: %w", err)
	}

	return readings, nil
}

func recentReadingsQuery(bucket, asset string, lookback time.Duration, limit int) string {
	if lookback <= 0 {
		lookback = time.Hour
	}

	flux := fmt.Sprintf(`from(bucket: %q)
|> range(start: -%s)
|> filter(fn: (r) => r["_measurement"] == %s)
|> filter(fn: (r) => r["plugin"] == %s)
|> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")`,
		bucket, toFluxDuration(lookback), fluxStringLiteral(asset), fluxStringLiteral(PluginTag))

	flux += "\n|> sort(columns: [\"_time\"], desc: true)"
	if limit > 0 {
		flux = fmt.Sprintf("%s\n|> limit(n:%d)", flux, limit)
	}
	return flux
}

// pivotedReading keeps the integer columns of a pivoted row, dropping the
// Flux bookkeeping columns that start with an underscore.
func pivotedReading(asset string, ts time.Time, values map[string]interface{}) StoredReading {
	out := StoredReading{Time: ts, Asset: asset, Readings: make(map[string]int64)}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.HasPrefix(k, "_") || k == "result" || k == "table" || k == "plugin" {
			continue
		}
		switch v := values[k].(type) {
		case int64:
			out.Readings[k] = v
		case uint64:
			out.Readings[k] = int64(v)
		case float64:
			out.Readings[k] = int64(v)
		}
	}
	return out
}

// Ping checks the InfluxDB availability using the wrapped client.
func (c *Client) Ping(ctx context.Context) error {
	ok, err := c.client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("influxdb ping failed")
	}
	return nil
}

// Close releases resources held by the underlying client.
func (c *Client) Close() {
	c.client.Close()
}

func toFluxDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	d = d.Truncate(time.Second)
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int64(d/time.Hour))
	}
	if d%time.Minute == 0 {
		return fmt.Sprintf("%dm", int64(d/time.Minute))
	}
	if d%time.Second == 0 {
		return fmt.Sprintf("%ds", int64(d/time.Second))
	}
	return fmt.Sprintf("%dns", d.Nanoseconds())
}

func fluxStringLiteral(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return fmt.Sprintf("\"%s\"", s)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
