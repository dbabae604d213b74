// Package handlers dispatches planned operations to the remote API, one
// handler per object type. Handlers translate row-field payloads into
// API bodies, locate implicit parents server-side, and resolve
// late-bound identities for kinds the planner cannot address offline.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/netgrove/bamsync/pkg/bam"
	"github.com/netgrove/bamsync/pkg/model"
	"github.com/netgrove/bamsync/pkg/plan"
)

// Handler executes one object type's operations.
type Handler interface {
	Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error)
	Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error)
	Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error
}

// ErrUnsupportedUpdate marks kinds whose entities are immutable on the
// server: the only change is delete and re-create.
var ErrUnsupportedUpdate = errors.New("object type does not support in-place updates")

var registry = map[model.ObjectType]Handler{}

func register(typ model.ObjectType, h Handler) {
	registry[typ] = h
}

// Lookup returns the handler for an object type.
func Lookup(typ model.ObjectType) (Handler, error) {
	h, ok := registry[typ]
	if !ok {
		return nil, fmt.Errorf("no handler registered for object type %q", typ)
	}
	return h, nil
}

// Registered reports whether a handler exists for the type.
func Registered(typ model.ObjectType) bool {
	_, ok := registry[typ]
	return ok
}

// ----------------------------------------------------------------------------
// Payload accessors
// ----------------------------------------------------------------------------

func str(op *plan.Operation, key string) string {
	if v, ok := op.Payload[key].(string); ok {
		return v
	}
	return ""
}

// num reads a numeric payload value. Deferred-reference resolution
// stores int64; JSON round trips may store float64; row fields are
// strings.
func num(op *plan.Operation, key string) int64 {
	switch v := op.Payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return n
		}
	}
	return 0
}

func boolean(op *plan.Operation, key string) bool {
	switch v := op.Payload[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "yes" || v == "1"
	}
	return false
}

func list(op *plan.Operation, key string) []string {
	raw := str(op, key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, model.ListDelimiter)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// setIf adds a key to an API body only when the payload carries a value.
func setIf(body map[string]any, key, value string) {
	if value != "" {
		body[key] = value
	}
}

func setIfNum(body map[string]any, key string, op *plan.Operation, payloadKey string) {
	if _, ok := op.Payload[payloadKey]; ok {
		body[key] = num(op, payloadKey)
	}
}

// requireID returns the bound resource ID or fails the operation; used
// by handlers whose identity the planner always binds.
func requireID(op *plan.Operation) (int64, error) {
	if op.ResourceID == 0 {
		return 0, fmt.Errorf("operation for row %s carries no resource id", op.RowID)
	}
	return op.ResourceID, nil
}

// configurationID extracts the resolved configuration for parent-scoped
// creates. Zero means the planner could not bind it, which is a bug in
// the plan, not the server.
func configurationID(op *plan.Operation) (int64, error) {
	id := num(op, "configuration_id")
	if id == 0 {
		return 0, fmt.Errorf("row %s: configuration id not resolved", op.RowID)
	}
	return id, nil
}

func viewID(op *plan.Operation) (int64, error) {
	id := num(op, "view_id")
	if id == 0 {
		return 0, fmt.Errorf("row %s: view id not resolved", op.RowID)
	}
	return id, nil
}

// Collection returns the API collection an object type's entities live
// in. Link-like kinds (resource tags, user-defined links) have no
// standalone collection and return "".
func Collection(typ model.ObjectType) string {
	switch typ {
	case model.TypeConfiguration:
		return bam.CollectionConfigurations
	case model.TypeView:
		return bam.CollectionViews
	case model.TypeIP4Block, model.TypeIP6Block:
		return bam.CollectionBlocks
	case model.TypeIP4Network, model.TypeIP6Network:
		return bam.CollectionNetworks
	case model.TypeIP4Address, model.TypeIP6Address, model.TypeDeviceAddress:
		return bam.CollectionAddresses
	case model.TypeIPv4DHCPRange, model.TypeIPv6DHCPRange:
		return bam.CollectionDHCPRanges
	case model.TypeDNSZone:
		return bam.CollectionZones
	case model.TypeHostRecord, model.TypeAliasRecord, model.TypeMXRecord,
		model.TypeTXTRecord, model.TypeSRVRecord, model.TypeExternalHostRecord,
		model.TypeGenericRecord:
		return bam.CollectionRecords
	case model.TypeDNSDeploymentRole, model.TypeDHCPDeploymentRole:
		return bam.CollectionDeployRoles
	case model.TypeDHCPv4ClientOption, model.TypeDHCPv4ServiceOption:
		return bam.CollectionDeployOptions
	case model.TypeLocation:
		return bam.CollectionLocations
	case model.TypeUDFDefinition:
		return bam.CollectionUDFDefinitions
	case model.TypeUDLDefinition:
		return bam.CollectionUDLDefinitions
	case model.TypeMACPool:
		return bam.CollectionMACPools
	case model.TypeMACAddress:
		return bam.CollectionMACAddresses
	case model.TypeTagGroup:
		return bam.CollectionTagGroups
	case model.TypeTag:
		return bam.CollectionTags
	case model.TypeDeviceType:
		return bam.CollectionDeviceTypes
	case model.TypeDeviceSubtype:
		return bam.CollectionDeviceSubtypes
	case model.TypeDevice:
		return bam.CollectionDevices
	case model.TypeACL:
		return bam.CollectionACLs
	case model.TypeAccessRight:
		return bam.CollectionAccessRights
	}
	return ""
}
