package bam

import (
	"context"
	"fmt"

	"github.com/netgrove/bamsync/pkg/model"
)

// FindBlockContainingAddress returns the most specific block whose range
// contains the address or CIDR.
//
// The server filter narrows to candidates containing the value; the
// longest-prefix winner is computed client-side. The candidate set is
// bounded by the block tree depth, so the linear scan is cheap.
func (c *Client) FindBlockContainingAddress(ctx context.Context, configurationID int64, addressOrCIDR string) (*Entity, error) {
	path := fmt.Sprintf("/%s/%d/%s", CollectionConfigurations, configurationID, CollectionBlocks)
	return c.findContaining(ctx, path, addressOrCIDR)
}

// FindNetworkContainingAddress returns the most specific network whose
// range contains the address.
func (c *Client) FindNetworkContainingAddress(ctx context.Context, configurationID int64, address string) (*Entity, error) {
	path := fmt.Sprintf("/%s/%d/%s", CollectionConfigurations, configurationID, CollectionNetworks)
	return c.findContaining(ctx, path, address)
}

func (c *Client) findContaining(ctx context.Context, path, target string) (*Entity, error) {
	candidates, err := c.List(ctx, path, ListOptions{
		Filter: BuildFilter(map[string]any{"range__contains": target}),
	})
	if err != nil {
		return nil, err
	}

	best := longestPrefix(candidates, target)
	if best == nil {
		return nil, fmt.Errorf("no range containing %s: %w", target, ErrNotFound)
	}
	return best, nil
}

// longestPrefix picks the candidate with the longest prefix that still
// contains the target. Candidates whose range does not actually contain
// the target (servers can over-match) are skipped.
func longestPrefix(candidates []Entity, target string) *Entity {
	var best *Entity
	bestLen := -1

	for i := range candidates {
		r := candidates[i].Range
		if r == "" {
			continue
		}
		if !contains(r, target) {
			continue
		}
		if l := model.PrefixLen(r); l > bestLen {
			bestLen = l
			best = &candidates[i]
		}
	}
	return best
}

// contains accepts a bare address or a CIDR target.
func contains(outer, target string) bool {
	if model.PrefixContainsAddr(outer, target) {
		return true
	}
	return model.PrefixContains(outer, target)
}
