package bam

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ListOptions bounds and filters a paginated listing.
type ListOptions struct {
	// Filter is a server filter expression (see BuildFilter).
	Filter string

	// Fields restricts the returned attributes.
	Fields string

	// OrderBy sorts the server response.
	OrderBy string

	// Limit is the page size requested from the server.
	Limit int

	// MaxItems stops pagination after this many items (0 = unbounded).
	MaxItems int

	// MaxPages stops pagination after this many pages (0 = unbounded).
	MaxPages int
}

// List fetches a collection endpoint, following _links.next until the
// server stops returning one or a caller cap is reached.
//
// A visited-page guard records each (endpoint, sorted-query) pair; a page
// that recurs terminates the loop, so a self-referential next link cannot
// spin the paginator.
func (c *Client) List(ctx context.Context, endpoint string, opts ListOptions) ([]Entity, error) {
	query := url.Values{}
	if opts.Filter != "" {
		query.Set("filter", opts.Filter)
	}
	if opts.Fields != "" {
		query.Set("fields", opts.Fields)
	}
	if opts.OrderBy != "" {
		query.Set("orderBy", opts.OrderBy)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}

	var all []Entity
	visited := make(map[string]bool)

	page := endpoint
	pageQuery := query
	pages := 0

	for {
		key := pageKey(page, pageQuery)
		if visited[key] {
			return all, nil
		}
		visited[key] = true

		var envelope halEnvelope
		if err := c.do(ctx, "GET", page, pageQuery, nil, &envelope); err != nil {
			return nil, err
		}

		items, err := envelope.items()
		if err != nil {
			return nil, fmt.Errorf("failed to decode collection page %s: %w", page, err)
		}
		all = append(all, items...)
		pages++

		if opts.MaxItems > 0 && len(all) >= opts.MaxItems {
			return all[:opts.MaxItems], nil
		}
		if opts.MaxPages > 0 && pages >= opts.MaxPages {
			return all, nil
		}

		nextURL := envelope.next()
		if nextURL == "" {
			return all, nil
		}

		page, pageQuery, err = splitNext(nextURL)
		if err != nil {
			return nil, fmt.Errorf("bad next link %q: %w", nextURL, err)
		}
	}
}

// ListOne returns the single entity matching the filter, ErrNotFound when
// the result set is empty, or an error when it is ambiguous.
func (c *Client) ListOne(ctx context.Context, endpoint string, opts ListOptions) (*Entity, error) {
	opts.MaxItems = 2
	if opts.Limit == 0 {
		opts.Limit = 2
	}
	entities, err := c.List(ctx, endpoint, opts)
	if err != nil {
		return nil, err
	}
	switch len(entities) {
	case 0:
		return nil, fmt.Errorf("%s: %w", endpoint, ErrNotFound)
	case 1:
		return &entities[0], nil
	default:
		return nil, &APIError{
			Kind:     KindFatal,
			Message:  fmt.Sprintf("filter %q matched more than one entity", opts.Filter),
			Endpoint: endpoint,
		}
	}
}

// pageKey canonicalizes an endpoint plus query for the loop guard.
func pageKey(endpoint string, query url.Values) string {
	if len(query) == 0 {
		return endpoint
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(endpoint)
	for _, k := range keys {
		b.WriteByte('&')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.Join(query[k], ","))
	}
	return b.String()
}

// splitNext turns a next-link URL (absolute or server-relative) back into
// a facade path plus query values.
func splitNext(nextURL string) (string, url.Values, error) {
	parsed, err := url.Parse(nextURL)
	if err != nil {
		return "", nil, err
	}

	path := parsed.Path
	// Strip the /api/<version> prefix when the server returns full paths.
	if idx := strings.Index(path, "/api/"); idx >= 0 {
		rest := path[idx+len("/api/"):]
		if slash := strings.Index(rest, "/"); slash >= 0 {
			path = rest[slash:]
		}
	}

	return path, parsed.Query(), nil
}
