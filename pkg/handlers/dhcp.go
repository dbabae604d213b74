package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/netgrove/bamsync/pkg/bam"
	"github.com/netgrove/bamsync/pkg/model"
	"github.com/netgrove/bamsync/pkg/plan"
)

func init() {
	register(model.TypeDHCPv4ClientOption, optionHandler{typeName: "DHCPv4ClientOption"})
	register(model.TypeDHCPv4ServiceOption, optionHandler{typeName: "DHCPv4ServiceOption"})
	register(model.TypeMACPool, macPoolHandler{})
	register(model.TypeMACAddress, macAddressHandler{})
}

// ----------------------------------------------------------------------------
// DHCP deployment options
// ----------------------------------------------------------------------------

// optionHandler manages DHCPv4 client and service deployment options.
//
// Newer servers take the scope as a structured object; older ones only
// accept the legacy "scope:server" string. The handler sends the object
// form first and falls back on a validation rejection.
type optionHandler struct {
	typeName string
}

// target picks the entity the option attaches to: a network when the
// path field holds a CIDR, otherwise the configuration itself.
func (h optionHandler) target(ctx context.Context, client *bam.Client, op *plan.Operation) (string, int64, error) {
	configID, err := configurationID(op)
	if err != nil {
		return "", 0, err
	}
	path := str(op, "path")
	if path == "" {
		return bam.CollectionConfigurations, configID, nil
	}
	if model.ValidateCIDR(path) != nil {
		return "", 0, fmt.Errorf("row %s: option path %q is not a CIDR", op.RowID, path)
	}
	network, err := client.GetNetworkByRange(ctx, configID, path)
	if err != nil {
		return "", 0, fmt.Errorf("row %s: option target %s: %w", op.RowID, path, err)
	}
	return bam.CollectionNetworks, network.ID, nil
}

func scopeTypeName(scope string) string {
	switch scope {
	case "server-wide":
		return "SERVER"
	case "service-wide":
		return "SERVICE"
	case "client-wide":
		return "CLIENT"
	case "all-servers":
		return "ALL"
	}
	return ""
}

func (h optionHandler) body(op *plan.Operation, legacyScope bool) map[string]any {
	body := map[string]any{
		"type":  h.typeName,
		"name":  str(op, "option_name"),
		"value": list(op, "option_value"),
	}
	setIfNum(body, "code", op, "option_code")

	scope := str(op, "server_scope")
	if scope == "" {
		return body
	}
	if legacyScope {
		legacy := scope
		if server := str(op, "server"); server != "" {
			legacy = scope + ":" + server
		}
		body["serverScope"] = legacy
		return body
	}
	scopeObj := map[string]any{"type": scopeTypeName(scope)}
	if server := str(op, "server"); server != "" {
		scopeObj["server"] = map[string]any{"name": server}
	}
	body["serverScope"] = scopeObj
	return body
}

func (h optionHandler) Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	collection, targetID, err := h.target(ctx, client, op)
	if err != nil {
		return nil, err
	}

	entity, err := client.CreateUnder(ctx, collection, targetID, bam.CollectionDeployOptions, h.body(op, false))
	if err != nil && bam.Kind(err) == bam.KindValidation && str(op, "server_scope") != "" {
		return client.CreateUnder(ctx, collection, targetID, bam.CollectionDeployOptions, h.body(op, true))
	}
	return entity, err
}

func (h optionHandler) locate(ctx context.Context, client *bam.Client, op *plan.Operation) (int64, error) {
	if op.ResourceID != 0 {
		return op.ResourceID, nil
	}
	collection, targetID, err := h.target(ctx, client, op)
	if err != nil {
		return 0, err
	}
	entities, err := client.ListUnder(ctx, collection, targetID, bam.CollectionDeployOptions, bam.ListOptions{
		Filter:   bam.BuildFilter(map[string]any{"name": str(op, "option_name")}),
		MaxItems: 1,
	})
	if err != nil {
		return 0, err
	}
	if len(entities) == 0 {
		return 0, fmt.Errorf("row %s: option %s: %w", op.RowID, str(op, "option_name"), bam.ErrNotFound)
	}
	return entities[0].ID, nil
}

func (h optionHandler) Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	id, err := h.locate(ctx, client, op)
	if err != nil {
		return nil, err
	}
	body := h.body(op, false)
	delete(body, "type")
	delete(body, "name")

	entity, err := client.Update(ctx, bam.CollectionDeployOptions, id, body)
	if err != nil && bam.Kind(err) == bam.KindValidation && str(op, "server_scope") != "" {
		legacy := h.body(op, true)
		delete(legacy, "type")
		delete(legacy, "name")
		return client.Update(ctx, bam.CollectionDeployOptions, id, legacy)
	}
	return entity, err
}

func (h optionHandler) Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error {
	id, err := h.locate(ctx, client, op)
	if err != nil {
		return err
	}
	return client.Delete(ctx, bam.CollectionDeployOptions, id, false)
}

// ----------------------------------------------------------------------------
// MAC pools
// ----------------------------------------------------------------------------

type macPoolHandler struct{}

func (macPoolHandler) Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	configID, err := configurationID(op)
	if err != nil {
		return nil, err
	}
	body := map[string]any{"type": "MACPool", "name": str(op, "name")}
	return client.CreateUnder(ctx, bam.CollectionConfigurations, configID, bam.CollectionMACPools, body)
}

func (macPoolHandler) Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	id, err := requireID(op)
	if err != nil {
		return nil, err
	}
	return client.Update(ctx, bam.CollectionMACPools, id, map[string]any{"name": str(op, "name")})
}

func (macPoolHandler) Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error {
	id, err := requireID(op)
	if err != nil {
		return err
	}
	return client.Delete(ctx, bam.CollectionMACPools, id, false)
}

// ----------------------------------------------------------------------------
// MAC addresses
// ----------------------------------------------------------------------------

type macAddressHandler struct{}

func (h macAddressHandler) body(ctx context.Context, client *bam.Client, op *plan.Operation) (map[string]any, error) {
	body := map[string]any{
		"type":    "MACAddress",
		"address": str(op, "mac_address"),
	}
	setIf(body, "name", str(op, "name"))

	if poolID := num(op, "pool_id"); poolID != 0 {
		body["macPool"] = map[string]any{"id": poolID}
	} else if pool := str(op, "pool"); pool != "" {
		configID, err := configurationID(op)
		if err != nil {
			return nil, err
		}
		entity, err := client.ListOne(ctx,
			fmt.Sprintf("/%s/%d/%s", bam.CollectionConfigurations, configID, bam.CollectionMACPools),
			bam.ListOptions{Filter: bam.BuildFilter(map[string]any{"name": pool})})
		if err != nil {
			if errors.Is(err, bam.ErrNotFound) {
				return nil, fmt.Errorf("row %s: mac pool %s: %w", op.RowID, pool, err)
			}
			return nil, err
		}
		body["macPool"] = map[string]any{"id": entity.ID}
	}
	return body, nil
}

func (h macAddressHandler) Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	configID, err := configurationID(op)
	if err != nil {
		return nil, err
	}
	body, err := h.body(ctx, client, op)
	if err != nil {
		return nil, err
	}
	return client.CreateUnder(ctx, bam.CollectionConfigurations, configID, bam.CollectionMACAddresses, body)
}

func (h macAddressHandler) Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	id, err := requireID(op)
	if err != nil {
		return nil, err
	}
	body, err := h.body(ctx, client, op)
	if err != nil {
		return nil, err
	}
	delete(body, "type")
	delete(body, "address")
	return client.Update(ctx, bam.CollectionMACAddresses, id, body)
}

func (h macAddressHandler) Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error {
	id, err := requireID(op)
	if err != nil {
		return err
	}
	return client.Delete(ctx, bam.CollectionMACAddresses, id, false)
}
