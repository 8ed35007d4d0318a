// Package store implements the columnar store client: three append-only
// tables (equity_prints, equity_quotes, equity_candles) over a ClickHouse-
// style HTTP interface. No example repo in the retrieval pack ships a
// working ClickHouse driver (one references a dsn flag only), so this
// talks to the store's native HTTP endpoint directly with net/http —
// justified in DESIGN.md rather than introduced silently.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/equitystream/equitystream/internal/model"
)

// Client talks to the store's HTTP interface (default port 8123).
type Client struct {
	baseURL  string
	database string
	http     *http.Client
}

// New builds a store Client against baseURL/database.
func New(baseURL, database string) *Client {
	return &Client{
		baseURL:  baseURL,
		database: database,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// EnsurePrintsTable idempotently creates equity_prints.
func (c *Client) EnsurePrintsTable(ctx context.Context) error {
	return c.exec(ctx, `CREATE TABLE IF NOT EXISTS equity_prints (
		underlying_id String, ts Int64, seq Int64, source_ts Int64, ingest_ts Int64,
		trace_id String, price Decimal(18,6), size Int64, exchange String, off_exchange_flag UInt8
	) ENGINE = MergeTree ORDER BY (underlying_id, ts, seq)`)
}

// EnsureQuotesTable idempotently creates equity_quotes.
func (c *Client) EnsureQuotesTable(ctx context.Context) error {
	return c.exec(ctx, `CREATE TABLE IF NOT EXISTS equity_quotes (
		underlying_id String, ts Int64, seq Int64, source_ts Int64, ingest_ts Int64,
		trace_id String, bid Decimal(18,6), ask Decimal(18,6), exchange String
	) ENGINE = MergeTree ORDER BY (underlying_id, ts, seq)`)
}

// EnsureCandlesTable idempotently creates equity_candles, conceptually
// keyed by (underlying_id, interval_ms, ts).
func (c *Client) EnsureCandlesTable(ctx context.Context) error {
	return c.exec(ctx, `CREATE TABLE IF NOT EXISTS equity_candles (
		underlying_id String, interval_ms Int64, ts Int64,
		open Decimal(18,6), high Decimal(18,6), low Decimal(18,6), close Decimal(18,6),
		volume Int64, trade_count Int64, source_ts Int64, ingest_ts Int64, seq Int64, trace_id String
	) ENGINE = MergeTree ORDER BY (underlying_id, interval_ms, ts)`)
}

// InsertPrint appends one row to equity_prints.
func (c *Client) InsertPrint(ctx context.Context, p model.Print) error {
	if err := c.insertJSONEachRow(ctx, "equity_prints", p); err != nil {
		return &model.StorePersistError{Table: "equity_prints", Err: err}
	}
	return nil
}

// InsertQuote appends one row to equity_quotes.
func (c *Client) InsertQuote(ctx context.Context, q model.Quote) error {
	if err := c.insertJSONEachRow(ctx, "equity_quotes", q); err != nil {
		return &model.StorePersistError{Table: "equity_quotes", Err: err}
	}
	return nil
}

// InsertCandle appends one row to equity_candles.
func (c *Client) InsertCandle(ctx context.Context, candle model.Candle) error {
	if err := c.insertJSONEachRow(ctx, "equity_candles", candle); err != nil {
		return &model.StorePersistError{Table: "equity_candles", Err: err}
	}
	return nil
}

func (c *Client) insertJSONEachRow(ctx context.Context, table string, row any) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal row for %s: %w", table, err)
	}

	query := fmt.Sprintf("INSERT INTO %s FORMAT JSONEachRow", table)
	return c.post(ctx, query, data)
}

func (c *Client) exec(ctx context.Context, query string) error {
	return c.post(ctx, query, nil)
}

func (c *Client) post(ctx context.Context, query string, body []byte) error {
	reqURL := fmt.Sprintf("%s/?database=%s&query=%s", c.baseURL, url.QueryEscape(c.database), url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build store request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("store returned %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}
