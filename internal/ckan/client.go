// Package ckan implements the CKAN action API client used to read asset
// metadata and telemetry partitions from the open-data catalog. All
// datastore access goes through datastore_search_sql so the server does
// the filtering; paging is by LIMIT/OFFSET in fixed chunks.
package ckan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/meterwatch/meterwatch/pkg/constants"
	"github.com/meterwatch/meterwatch/pkg/errors"
	"github.com/meterwatch/meterwatch/pkg/logging"
)

// Client is a CKAN action API client. Safe for concurrent use.
type Client struct {
	http    *http.Client
	baseURL string
	auth    []Authenticator
	chunk   int
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client. Used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAuthenticator appends an authenticator applied to every request.
func WithAuthenticator(auth Authenticator) Option {
	return func(c *Client) { c.auth = append(c.auth, auth) }
}

// WithChunkSize overrides the row paging chunk size.
func WithChunkSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.chunk = n
		}
	}
}

// New creates a client for the catalog at baseURL (the site root, without
// the /api/3 suffix).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: constants.DefaultHTTPTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		chunk:   constants.CatalogChunkSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Package fetches a dataset and its resource list via package_show.
func (c *Client) Package(ctx context.Context, id string) (*Package, error) {
	raw, err := c.action(ctx, "package_show", url.Values{"id": {id}})
	if err != nil {
		return nil, errors.WrapCatalog(id, err)
	}
	var pkg Package
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return nil, errors.WrapParse("json", "package_show", err)
	}
	return &pkg, nil
}

// ResolveResource finds the resource with the given name inside a
// package. Matching is exact on the resource name.
func (c *Client) ResolveResource(ctx context.Context, packageID, name string) (*Resource, error) {
	pkg, err := c.Package(ctx, packageID)
	if err != nil {
		return nil, err
	}
	for i := range pkg.Resources {
		if pkg.Resources[i].Name == name {
			return &pkg.Resources[i], nil
		}
	}
	return nil, errors.NewNotFoundError("resource", packageID+"/"+name)
}

// SearchSQL runs one datastore_search_sql query and returns its records
// with every cell rendered as text. Numbers keep their exact JSON form.
func (c *Client) SearchSQL(ctx context.Context, query string) ([]map[string]string, error) {
	raw, err := c.action(ctx, "datastore_search_sql", url.Values{"sql": {query}})
	if err != nil {
		return nil, err
	}

	var result sqlResult
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&result); err != nil {
		return nil, errors.WrapParse("json", "datastore_search_sql", err)
	}

	rows := make([]map[string]string, 0, len(result.Records))
	for _, rec := range result.Records {
		row := make(map[string]string, len(rec))
		for k, v := range rec {
			row[k] = cellString(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ResourceRows streams every row of a named resource, paging in chunks so
// large metadata tables never hit the datastore response cap.
func (c *Client) ResourceRows(ctx context.Context, packageID, resourceName string) ([]map[string]string, error) {
	res, err := c.ResolveResource(ctx, packageID, resourceName)
	if err != nil {
		return nil, err
	}

	var rows []map[string]string
	for offset := 0; ; offset += c.chunk {
		query := fmt.Sprintf(`SELECT * FROM %s LIMIT %d OFFSET %d`,
			QuoteIdentifier(res.ID), c.chunk, offset)
		page, err := c.SearchSQL(ctx, query)
		if err != nil {
			return nil, errors.WrapCatalog(resourceName, err)
		}
		rows = append(rows, page...)
		if len(page) < c.chunk {
			break
		}
	}

	logging.FromContext(ctx).Debug().
		Str("resource", resourceName).
		Int("rows", len(rows)).
		Msg("Fetched resource rows")
	return rows, nil
}

// DeviceRows returns the reading rows for one device from a partition
// resource, newest first. Filtering happens server side.
func (c *Client) DeviceRows(ctx context.Context, resourceID, deviceID string) ([]map[string]string, error) {
	var rows []map[string]string
	for offset := 0; ; offset += c.chunk {
		query := fmt.Sprintf(`SELECT * FROM %s WHERE "device_id" = %s ORDER BY "timestamp" DESC LIMIT %d OFFSET %d`,
			QuoteIdentifier(resourceID), QuoteLiteral(deviceID), c.chunk, offset)
		page, err := c.SearchSQL(ctx, query)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page...)
		if len(page) < c.chunk {
			break
		}
	}
	return rows, nil
}

// action performs one CKAN action API call and returns the raw result.
func (c *Client) action(ctx context.Context, name string, params url.Values) (json.RawMessage, error) {
	endpoint := c.baseURL + "/api/3/action/" + name + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request for %s: %w", name, err)
	}
	for _, a := range c.auth {
		a.Apply(req)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", name, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewCatalogError(name, resp.StatusCode, string(body), nil)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.WrapParse("json", name, err)
	}
	if !env.Success {
		return nil, errors.NewCatalogError(name, resp.StatusCode, env.Error.String(), nil)
	}
	return env.Result, nil
}

// cellString renders a decoded JSON cell as text. json.Number keeps the
// wire form, so numeric readings round-trip without float formatting.
func cellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// QuoteIdentifier double-quotes a SQL identifier, escaping embedded
// quotes. Resource ids come from the catalog, not from users, but they
// still pass through here before entering a query.
func QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// QuoteLiteral single-quotes a SQL string literal, escaping embedded
// quotes. The datastore SQL endpoint has no placeholder support, so every
// interpolated value must come through here.
func QuoteLiteral(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}
