package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// From starts a PostgREST query against table.
func (c *Client) From(table string) *QueryBuilder {
	return &QueryBuilder{client: c, table: table}
}

// QueryBuilder builds PostgREST requests.
type QueryBuilder struct {
	client  *Client
	table   string
	columns string
	filters url.Values
	orders  []string
}

// Select specifies columns to return.
func (q *QueryBuilder) Select(columns string) *QueryBuilder {
	q.columns = columns
	return q
}

// Eq adds an equality filter.
func (q *QueryBuilder) Eq(column string, value any) *QueryBuilder {
	if q.filters == nil {
		q.filters = url.Values{}
	}
	q.filters.Add(column, fmt.Sprintf("eq.%v", value))
	return q
}

// Order adds an ORDER BY clause.
func (q *QueryBuilder) Order(column string, ascending bool) *QueryBuilder {
	dir := "asc"
	if !ascending {
		dir = "desc"
	}
	q.orders = append(q.orders, column+"."+dir)
	return q
}

func (q *QueryBuilder) endpoint(withSelect bool) string {
	params := url.Values{}
	for k, vs := range q.filters {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	if withSelect && q.columns != "" {
		params.Set("select", q.columns)
	}
	if withSelect && len(q.orders) > 0 {
		params.Set("order", strings.Join(q.orders, ","))
	}

	reqURL := fmt.Sprintf("%s/rest/v1/%s", q.client.baseURL, url.PathEscape(q.table))
	if encoded := params.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}
	return reqURL
}

// Execute runs a SELECT and decodes the rows into out.
func (q *QueryBuilder) Execute(ctx context.Context, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.endpoint(true), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q.client.setHeaders(req)

	resp, err := q.client.do(req, "rest.select")
	if err != nil {
		return err
	}
	return decodeRows(resp, out)
}

// ExecuteInsert inserts rows and decodes the stored representation into out.
func (q *QueryBuilder) ExecuteInsert(ctx context.Context, rows any, out any) error {
	return q.write(ctx, http.MethodPost, "rest.insert", rows, out)
}

// ExecuteUpdate patches every row matching the filters and decodes the result into out.
func (q *QueryBuilder) ExecuteUpdate(ctx context.Context, patch any, out any) error {
	if len(q.filters) == 0 {
		return fmt.Errorf("update on %s requires a filter", q.table)
	}
	return q.write(ctx, http.MethodPatch, "rest.update", patch, out)
}

// ExecuteDelete removes every row matching the filters.
func (q *QueryBuilder) ExecuteDelete(ctx context.Context) error {
	if len(q.filters) == 0 {
		return fmt.Errorf("delete on %s requires a filter", q.table)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, q.endpoint(false), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q.client.setHeaders(req)
	req.Header.Set("Prefer", "return=minimal")

	_, err = q.client.do(req, "rest.delete")
	return err
}

func (q *QueryBuilder) write(ctx context.Context, method, operation string, data any, out any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.endpoint(true), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q.client.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := q.client.do(req, operation)
	if err != nil {
		return err
	}
	return decodeRows(resp, out)
}

func decodeRows(resp *Response, out any) error {
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode rows: %w", err)
	}
	return nil
}
