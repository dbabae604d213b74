package handlers

import (
	"context"
	"fmt"

	"github.com/netgrove/bamsync/pkg/bam"
	"github.com/netgrove/bamsync/pkg/model"
	"github.com/netgrove/bamsync/pkg/plan"
)

func init() {
	register(model.TypeConfiguration, configurationHandler{})
	register(model.TypeView, viewHandler{})
	register(model.TypeIP4Block, blockHandler{typeName: "IP4Block"})
	register(model.TypeIP6Block, blockHandler{typeName: "IP6Block"})
	register(model.TypeIP4Network, networkHandler{typeName: "IP4Network"})
	register(model.TypeIP6Network, networkHandler{typeName: "IP6Network"})
	register(model.TypeIP4Address, addressHandler{typeName: "IP4Address"})
	register(model.TypeIP6Address, addressHandler{typeName: "IP6Address"})
	register(model.TypeIPv4DHCPRange, rangeHandler{typeName: "IPv4DHCPRange"})
	register(model.TypeIPv6DHCPRange, rangeHandler{typeName: "IPv6DHCPRange"})
}

// ----------------------------------------------------------------------------
// Configuration
// ----------------------------------------------------------------------------

type configurationHandler struct{}

func (configurationHandler) Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	body := map[string]any{"type": "Configuration", "name": str(op, "name")}
	setIf(body, "description", str(op, "description"))
	return client.Create(ctx, bam.CollectionConfigurations, body)
}

func (configurationHandler) Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	id, err := requireID(op)
	if err != nil {
		return nil, err
	}
	body := map[string]any{}
	setIf(body, "name", str(op, "name"))
	setIf(body, "description", str(op, "description"))
	return client.Update(ctx, bam.CollectionConfigurations, id, body)
}

func (configurationHandler) Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error {
	id, err := requireID(op)
	if err != nil {
		return err
	}
	return client.Delete(ctx, bam.CollectionConfigurations, id, true)
}

// ----------------------------------------------------------------------------
// View
// ----------------------------------------------------------------------------

type viewHandler struct{}

func (viewHandler) Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	configID, err := configurationID(op)
	if err != nil {
		return nil, err
	}
	body := map[string]any{"type": "View", "name": str(op, "name")}
	return client.CreateUnder(ctx, bam.CollectionConfigurations, configID, bam.CollectionViews, body)
}

func (viewHandler) Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	id, err := requireID(op)
	if err != nil {
		return nil, err
	}
	body := map[string]any{}
	setIf(body, "name", str(op, "name"))
	return client.Update(ctx, bam.CollectionViews, id, body)
}

func (viewHandler) Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error {
	id, err := requireID(op)
	if err != nil {
		return err
	}
	return client.Delete(ctx, bam.CollectionViews, id, true)
}

// ----------------------------------------------------------------------------
// Block
// ----------------------------------------------------------------------------

type blockHandler struct {
	typeName string
}

func (h blockHandler) body(op *plan.Operation) map[string]any {
	body := map[string]any{"type": h.typeName, "range": str(op, "cidr")}
	setIf(body, "name", str(op, "name"))
	if str(op, "allow_duplicate_host") != "" {
		body["allowDuplicateHost"] = boolean(op, "allow_duplicate_host")
	}
	return body
}

// Create places the block under its parent block when one is bound, else
// directly under the configuration.
func (h blockHandler) Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	if parentID := num(op, "parent_id"); parentID != 0 {
		return client.CreateUnder(ctx, bam.CollectionBlocks, parentID, bam.CollectionBlocks, h.body(op))
	}
	configID, err := configurationID(op)
	if err != nil {
		return nil, err
	}
	if parent, err := client.FindBlockContainingAddress(ctx, configID, str(op, "cidr")); err == nil {
		return client.CreateUnder(ctx, bam.CollectionBlocks, parent.ID, bam.CollectionBlocks, h.body(op))
	}
	return client.CreateUnder(ctx, bam.CollectionConfigurations, configID, bam.CollectionBlocks, h.body(op))
}

func (h blockHandler) Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	id, err := requireID(op)
	if err != nil {
		return nil, err
	}
	body := map[string]any{}
	setIf(body, "name", str(op, "name"))
	if str(op, "allow_duplicate_host") != "" {
		body["allowDuplicateHost"] = boolean(op, "allow_duplicate_host")
	}
	return client.Update(ctx, bam.CollectionBlocks, id, body)
}

func (h blockHandler) Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error {
	id, err := requireID(op)
	if err != nil {
		return err
	}
	return client.Delete(ctx, bam.CollectionBlocks, id, true)
}

// ----------------------------------------------------------------------------
// Network
// ----------------------------------------------------------------------------

type networkHandler struct {
	typeName string
}

func (h networkHandler) body(op *plan.Operation) map[string]any {
	body := map[string]any{"type": h.typeName, "range": str(op, "cidr")}
	setIf(body, "name", str(op, "name"))
	setIf(body, "gatewayAddress", str(op, "gateway"))
	setIf(body, "defaultView", str(op, "default_view"))
	return body
}

func (h networkHandler) Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	blockID := num(op, "block_id")
	if blockID == 0 {
		configID, err := configurationID(op)
		if err != nil {
			return nil, err
		}
		parent, err := client.FindBlockContainingAddress(ctx, configID, str(op, "cidr"))
		if err != nil {
			return nil, fmt.Errorf("row %s: no block contains %s: %w", op.RowID, str(op, "cidr"), err)
		}
		blockID = parent.ID
	}
	return client.CreateUnder(ctx, bam.CollectionBlocks, blockID, bam.CollectionNetworks, h.body(op))
}

func (h networkHandler) Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	id, err := requireID(op)
	if err != nil {
		return nil, err
	}
	body := map[string]any{}
	setIf(body, "name", str(op, "name"))
	setIf(body, "gatewayAddress", str(op, "gateway"))
	return client.Update(ctx, bam.CollectionNetworks, id, body)
}

func (h networkHandler) Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error {
	id, err := requireID(op)
	if err != nil {
		return err
	}
	return client.Delete(ctx, bam.CollectionNetworks, id, true)
}

// ----------------------------------------------------------------------------
// Address
// ----------------------------------------------------------------------------

type addressHandler struct {
	typeName string
}

func (h addressHandler) Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	networkID := num(op, "network_id")
	if networkID == 0 {
		configID, err := configurationID(op)
		if err != nil {
			return nil, err
		}
		parent, err := client.FindNetworkContainingAddress(ctx, configID, str(op, "address"))
		if err != nil {
			return nil, fmt.Errorf("row %s: no network contains %s: %w", op.RowID, str(op, "address"), err)
		}
		networkID = parent.ID
	}

	state := str(op, "state")
	if state == "" {
		state = "STATIC"
	}
	body := map[string]any{
		"type":    h.typeName,
		"address": str(op, "address"),
		"state":   state,
	}
	setIf(body, "name", str(op, "name"))
	setIf(body, "macAddress", str(op, "mac_address"))
	return client.CreateUnder(ctx, bam.CollectionNetworks, networkID, bam.CollectionAddresses, body)
}

func (h addressHandler) Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	id, err := requireID(op)
	if err != nil {
		return nil, err
	}
	body := map[string]any{}
	setIf(body, "name", str(op, "name"))
	setIf(body, "macAddress", str(op, "mac_address"))
	setIf(body, "state", str(op, "state"))
	return client.Update(ctx, bam.CollectionAddresses, id, body)
}

func (h addressHandler) Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error {
	id, err := requireID(op)
	if err != nil {
		return err
	}
	return client.Delete(ctx, bam.CollectionAddresses, id, false)
}

// ----------------------------------------------------------------------------
// DHCP range
// ----------------------------------------------------------------------------

type rangeHandler struct {
	typeName string
}

// locate finds the range by its start address when the planner left the
// identity unbound.
func (h rangeHandler) locate(ctx context.Context, client *bam.Client, op *plan.Operation) (int64, error) {
	if op.ResourceID != 0 {
		return op.ResourceID, nil
	}
	networkID, err := h.networkID(ctx, client, op)
	if err != nil {
		return 0, err
	}
	entities, err := client.ListUnder(ctx, bam.CollectionNetworks, networkID, bam.CollectionDHCPRanges, bam.ListOptions{
		Filter:   bam.BuildFilter(map[string]any{"startAddress": str(op, "start")}),
		MaxItems: 1,
	})
	if err != nil {
		return 0, err
	}
	if len(entities) == 0 {
		return 0, fmt.Errorf("row %s: dhcp range starting at %s: %w", op.RowID, str(op, "start"), bam.ErrNotFound)
	}
	return entities[0].ID, nil
}

func (h rangeHandler) networkID(ctx context.Context, client *bam.Client, op *plan.Operation) (int64, error) {
	if id := num(op, "network_id"); id != 0 {
		return id, nil
	}
	configID, err := configurationID(op)
	if err != nil {
		return 0, err
	}
	network, err := client.GetNetworkByRange(ctx, configID, str(op, "network"))
	if err != nil {
		return 0, fmt.Errorf("row %s: network %s: %w", op.RowID, str(op, "network"), err)
	}
	return network.ID, nil
}

func (h rangeHandler) Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	networkID, err := h.networkID(ctx, client, op)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"type":         h.typeName,
		"startAddress": str(op, "start"),
		"endAddress":   str(op, "end"),
	}
	setIf(body, "name", str(op, "name"))
	return client.CreateUnder(ctx, bam.CollectionNetworks, networkID, bam.CollectionDHCPRanges, body)
}

func (h rangeHandler) Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	id, err := h.locate(ctx, client, op)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"startAddress": str(op, "start"),
		"endAddress":   str(op, "end"),
	}
	setIf(body, "name", str(op, "name"))
	return client.Update(ctx, bam.CollectionDHCPRanges, id, body)
}

func (h rangeHandler) Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error {
	id, err := h.locate(ctx, client, op)
	if err != nil {
		return err
	}
	return client.Delete(ctx, bam.CollectionDHCPRanges, id, false)
}
