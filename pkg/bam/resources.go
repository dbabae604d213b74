package bam

import (
	"context"
	"fmt"
	"net/http"
)

// Collection names on the remote API.
const (
	CollectionConfigurations  = "configurations"
	CollectionViews           = "views"
	CollectionZones           = "zones"
	CollectionBlocks          = "blocks"
	CollectionNetworks        = "networks"
	CollectionAddresses       = "addresses"
	CollectionDHCPRanges      = "ranges"
	CollectionRecords         = "resourceRecords"
	CollectionDeployRoles     = "deploymentRoles"
	CollectionDeployOptions   = "deploymentOptions"
	CollectionLocations       = "locations"
	CollectionTagGroups       = "tagGroups"
	CollectionTags            = "tags"
	CollectionMACPools        = "macPools"
	CollectionMACAddresses    = "macAddresses"
	CollectionDeviceTypes     = "deviceTypes"
	CollectionDeviceSubtypes  = "deviceSubtypes"
	CollectionDevices         = "devices"
	CollectionACLs            = "acls"
	CollectionAccessRights    = "accessRights"
	CollectionUDFDefinitions  = "userDefinedFieldDefinitions"
	CollectionUDLDefinitions  = "userDefinedLinkDefinitions"
	CollectionServers         = "servers"
	CollectionServerInterface = "interfaces"
)

// GetByID fetches one entity from a collection.
func (c *Client) GetByID(ctx context.Context, collection string, id int64) (*Entity, error) {
	var entity Entity
	path := fmt.Sprintf("/%s/%d", collection, id)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &entity); err != nil {
		return nil, err
	}
	return &entity, nil
}

// Create posts a new entity into a top-level collection.
func (c *Client) Create(ctx context.Context, collection string, payload map[string]any) (*Entity, error) {
	var entity Entity
	path := "/" + collection
	if err := c.do(ctx, http.MethodPost, path, nil, payload, &entity); err != nil {
		return nil, err
	}
	return &entity, nil
}

// CreateUnder posts a new entity into a parent-scoped collection, e.g.
// POST /configurations/{id}/blocks.
func (c *Client) CreateUnder(ctx context.Context, parentCollection string, parentID int64, collection string, payload map[string]any) (*Entity, error) {
	var entity Entity
	path := fmt.Sprintf("/%s/%d/%s", parentCollection, parentID, collection)
	if err := c.do(ctx, http.MethodPost, path, nil, payload, &entity); err != nil {
		return nil, err
	}
	return &entity, nil
}

// Update patches an existing entity.
func (c *Client) Update(ctx context.Context, collection string, id int64, payload map[string]any) (*Entity, error) {
	var entity Entity
	path := fmt.Sprintf("/%s/%d", collection, id)
	if err := c.do(ctx, http.MethodPatch, path, nil, payload, &entity); err != nil {
		return nil, err
	}
	return &entity, nil
}

// Delete removes an entity. Protected kinds (configurations, views,
// blocks, networks, zones) are refused unless the client was configured
// with AllowDangerous; the refusal is a permission error, not an API
// error, and no request is sent.
func (c *Client) Delete(ctx context.Context, collection string, id int64, protected bool) error {
	if protected && !c.cfg.AllowDangerous {
		return fmt.Errorf("delete %s/%d: %w", collection, id, ErrDangerousOperation)
	}
	path := fmt.Sprintf("/%s/%d", collection, id)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// ListUnder lists a parent-scoped collection, e.g.
// GET /configurations/{id}/networks.
func (c *Client) ListUnder(ctx context.Context, parentCollection string, parentID int64, collection string, opts ListOptions) ([]Entity, error) {
	path := fmt.Sprintf("/%s/%d/%s", parentCollection, parentID, collection)
	return c.List(ctx, path, opts)
}

// GetConfigurationByName resolves a configuration by exact name.
func (c *Client) GetConfigurationByName(ctx context.Context, name string) (*Entity, error) {
	return c.ListOne(ctx, "/"+CollectionConfigurations, ListOptions{
		Filter: BuildFilter(map[string]any{"name": name}),
	})
}

// GetViewByName resolves a DNS view inside a configuration.
func (c *Client) GetViewByName(ctx context.Context, configurationID int64, name string) (*Entity, error) {
	path := fmt.Sprintf("/%s/%d/%s", CollectionConfigurations, configurationID, CollectionViews)
	return c.ListOne(ctx, path, ListOptions{
		Filter: BuildFilter(map[string]any{"name": name}),
	})
}

// GetBlockByRange resolves a block by its CIDR anywhere under a
// configuration.
func (c *Client) GetBlockByRange(ctx context.Context, configurationID int64, cidr string) (*Entity, error) {
	path := fmt.Sprintf("/%s/%d/%s", CollectionConfigurations, configurationID, CollectionBlocks)
	return c.ListOne(ctx, path, ListOptions{
		Filter: BuildFilter(map[string]any{"range": cidr}),
	})
}

// GetNetworkByRange resolves a network by its CIDR under a configuration.
func (c *Client) GetNetworkByRange(ctx context.Context, configurationID int64, cidr string) (*Entity, error) {
	path := fmt.Sprintf("/%s/%d/%s", CollectionConfigurations, configurationID, CollectionNetworks)
	return c.ListOne(ctx, path, ListOptions{
		Filter: BuildFilter(map[string]any{"range": cidr}),
	})
}

// GetAddressByIP resolves an address entity under a configuration.
func (c *Client) GetAddressByIP(ctx context.Context, configurationID int64, address string) (*Entity, error) {
	path := fmt.Sprintf("/%s/%d/%s", CollectionConfigurations, configurationID, CollectionAddresses)
	return c.ListOne(ctx, path, ListOptions{
		Filter: BuildFilter(map[string]any{"address": address}),
	})
}

// GetRecord resolves a resource record by absolute name and record type
// within a view.
func (c *Client) GetRecord(ctx context.Context, viewID int64, absoluteName, recordType string) (*Entity, error) {
	path := fmt.Sprintf("/%s/%d/%s", CollectionViews, viewID, CollectionRecords)
	filter := map[string]any{"absoluteName": absoluteName}
	if recordType != "" {
		filter["type"] = recordType
	}
	return c.ListOne(ctx, path, ListOptions{Filter: BuildFilter(filter)})
}

// SystemVersion probes the API root and returns the reported server
// version. Used by self-test.
func (c *Client) SystemVersion(ctx context.Context) (string, error) {
	var about struct {
		Version string `json:"version"`
	}
	if err := c.do(ctx, http.MethodGet, "/", nil, nil, &about); err != nil {
		return "", err
	}
	if about.Version == "" {
		return "unknown", nil
	}
	return about.Version, nil
}
