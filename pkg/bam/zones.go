package bam

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// GetZoneByFQDN resolves a zone inside a view.
//
// The server does not accept compound FQDNs in every context, so the
// lookup degrades through three strategies: an absoluteName match, a
// plain name match, then a reversed label walk from the TLD downward,
// descending through each zone's sub-zones.
func (c *Client) GetZoneByFQDN(ctx context.Context, viewID int64, fqdn string) (*Entity, error) {
	fqdn = strings.TrimSuffix(strings.ToLower(fqdn), ".")
	if fqdn == "" {
		return nil, fmt.Errorf("zone fqdn must not be empty: %w", ErrNotFound)
	}

	zonesPath := fmt.Sprintf("/%s/%d/%s", CollectionViews, viewID, CollectionZones)

	// Strategy 1: absolute name.
	zone, err := c.ListOne(ctx, zonesPath, ListOptions{
		Filter: BuildFilter(map[string]any{"absoluteName": fqdn}),
	})
	if err == nil {
		return zone, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// Strategy 2: plain name (single-label zones directly under the view).
	zone, err = c.ListOne(ctx, zonesPath, ListOptions{
		Filter: BuildFilter(map[string]any{"name": fqdn}),
	})
	if err == nil {
		return zone, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// Strategy 3: label walk. Resolve the TLD under the view, then follow
	// sub-zones one label at a time.
	labels := strings.Split(fqdn, ".")
	reverse(labels)

	var current *Entity
	for depth, label := range labels {
		var parentPath string
		if current == nil {
			parentPath = zonesPath
		} else {
			parentPath = fmt.Sprintf("/%s/%d/%s", CollectionZones, current.ID, CollectionZones)
		}

		next, err := c.ListOne(ctx, parentPath, ListOptions{
			Filter: BuildFilter(map[string]any{"name": label}),
		})
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("zone %s: label %q (depth %d): %w", fqdn, label, depth, ErrNotFound)
			}
			return nil, err
		}
		current = next
	}

	return current, nil
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
