package plan

import (
	"context"
	"errors"
	"fmt"

	"github.com/netgrove/bamsync/pkg/bam"
	"github.com/netgrove/bamsync/pkg/model"
)

// lookupTarget probes the remote for the row's target identity.
//
// probed=false marks kinds the planner cannot address offline (ranges,
// deployment roles and options, resource tags, access rights, links,
// device addresses): their handler resolves identity at execution time,
// so the operation is emitted with a zero ResourceID.
func (p *Planner) lookupTarget(ctx context.Context, row *model.Row, par parentsInfo) (id int64, found, probed bool, err error) {
	id, err = p.probe(ctx, row, par)
	switch {
	case errors.Is(err, errLateBound):
		return 0, false, false, nil
	case errors.Is(err, bam.ErrNotFound):
		return 0, false, true, nil
	case err != nil:
		return 0, false, true, err
	}
	return id, true, true, nil
}

// errLateBound marks kinds without an offline identity probe.
var errLateBound = errors.New("identity is resolved at execution time")

func (p *Planner) probe(ctx context.Context, row *model.Row, par parentsInfo) (int64, error) {
	switch row.ObjectType {
	case model.TypeConfiguration:
		return p.resolver.ResolveConfiguration(ctx, row.Get("name"))

	case model.TypeView:
		return p.resolver.ResolveView(ctx, row.Configuration, row.Get("name"))

	case model.TypeIP4Block, model.TypeIP6Block:
		return p.resolver.ResolveBlock(ctx, row.Configuration, row.Get("cidr"))

	case model.TypeIP4Network, model.TypeIP6Network:
		return p.resolver.ResolveNetwork(ctx, row.Configuration, row.Get("cidr"))

	case model.TypeIP4Address, model.TypeIP6Address:
		return p.resolver.ResolveAddress(ctx, row.Configuration, row.Get("address"))

	case model.TypeDNSZone:
		return p.resolver.ResolveZone(ctx, row.Configuration, row.View, row.Get("fqdn"))

	case model.TypeHostRecord, model.TypeAliasRecord, model.TypeMXRecord,
		model.TypeTXTRecord, model.TypeSRVRecord, model.TypeExternalHostRecord,
		model.TypeGenericRecord:
		entity, err := p.client.GetRecord(ctx, par.viewID, row.Get("fqdn"), recordTypeName(row))
		if err != nil {
			return 0, err
		}
		return entity.ID, nil

	case model.TypeLocation:
		return p.resolver.ResolveLocation(ctx, row.Get("code"))

	case model.TypeTagGroup:
		return p.resolver.ResolveNamed(ctx, row.ObjectType, bam.CollectionTagGroups, row.Get("name"))

	case model.TypeTag:
		groupID, err := p.resolver.ResolveNamed(ctx, model.TypeTagGroup, bam.CollectionTagGroups, row.Get("tag_group"))
		if err != nil {
			return 0, err
		}
		return p.resolver.ResolveNamedUnder(ctx, row.ObjectType,
			bam.CollectionTagGroups, groupID, bam.CollectionTags, row.Get("name"))

	case model.TypeDeviceType:
		return p.resolver.ResolveNamed(ctx, row.ObjectType, bam.CollectionDeviceTypes, row.Get("name"))

	case model.TypeDeviceSubtype:
		return p.resolver.ResolveNamed(ctx, row.ObjectType, bam.CollectionDeviceSubtypes, row.Get("name"))

	case model.TypeDevice:
		return p.resolver.ResolveNamedUnder(ctx, row.ObjectType,
			bam.CollectionConfigurations, par.configID, bam.CollectionDevices, row.Get("name"))

	case model.TypeACL:
		return p.resolver.ResolveNamedUnder(ctx, row.ObjectType,
			bam.CollectionConfigurations, par.configID, bam.CollectionACLs, row.Get("name"))

	case model.TypeMACPool:
		return p.resolver.ResolveNamedUnder(ctx, row.ObjectType,
			bam.CollectionConfigurations, par.configID, bam.CollectionMACPools, row.Get("name"))

	case model.TypeMACAddress:
		entities, err := p.client.ListUnder(ctx, bam.CollectionConfigurations, par.configID,
			bam.CollectionMACAddresses, bam.ListOptions{
				Filter:   bam.BuildFilter(map[string]any{"address": row.Get("mac_address")}),
				MaxItems: 1,
			})
		if err != nil {
			return 0, err
		}
		if len(entities) == 0 {
			return 0, bam.ErrNotFound
		}
		return entities[0].ID, nil

	case model.TypeUDFDefinition:
		return p.resolver.ResolveNamed(ctx, row.ObjectType, bam.CollectionUDFDefinitions, row.Get("field_name"))

	case model.TypeUDLDefinition:
		return p.resolver.ResolveNamed(ctx, row.ObjectType, bam.CollectionUDLDefinitions, row.Get("name"))
	}

	return 0, errLateBound
}

// recordTypeName maps a record row to the server's type discriminator.
func recordTypeName(row *model.Row) string {
	switch row.ObjectType {
	case model.TypeHostRecord:
		return "HostRecord"
	case model.TypeAliasRecord:
		return "AliasRecord"
	case model.TypeMXRecord:
		return "MXRecord"
	case model.TypeTXTRecord:
		return "TXTRecord"
	case model.TypeSRVRecord:
		return "SRVRecord"
	case model.TypeExternalHostRecord:
		return "ExternalHostRecord"
	case model.TypeGenericRecord:
		return row.Get("record_type")
	}
	return ""
}

// LocateExisting probes the remote for the entity an operation's row
// describes, going straight to the client so stale resolver cache
// entries cannot mask it. The executor uses it to rebind a create that
// conflicted with an entity born after planning.
func (p *Planner) LocateExisting(ctx context.Context, op *Operation) (int64, error) {
	get := func(key string) string {
		s, _ := op.Payload[key].(string)
		return s
	}
	id := func(key string) int64 {
		switch v := op.Payload[key].(type) {
		case int64:
			return v
		case float64:
			return int64(v)
		}
		return 0
	}
	one := func(path string, filter map[string]any) (int64, error) {
		entity, err := p.client.ListOne(ctx, path, bam.ListOptions{Filter: bam.BuildFilter(filter)})
		if err != nil {
			return 0, err
		}
		return entity.ID, nil
	}
	underConfig := func(collection, name string) (int64, error) {
		path := fmt.Sprintf("/%s/%d/%s", bam.CollectionConfigurations, id("configuration_id"), collection)
		return one(path, map[string]any{"name": name})
	}

	switch op.ObjectType {
	case model.TypeConfiguration:
		entity, err := p.client.GetConfigurationByName(ctx, get("name"))
		if err != nil {
			return 0, err
		}
		return entity.ID, nil

	case model.TypeView:
		entity, err := p.client.GetViewByName(ctx, id("configuration_id"), get("name"))
		if err != nil {
			return 0, err
		}
		return entity.ID, nil

	case model.TypeIP4Block, model.TypeIP6Block:
		entity, err := p.client.GetBlockByRange(ctx, id("configuration_id"), get("cidr"))
		if err != nil {
			return 0, err
		}
		return entity.ID, nil

	case model.TypeIP4Network, model.TypeIP6Network:
		entity, err := p.client.GetNetworkByRange(ctx, id("configuration_id"), get("cidr"))
		if err != nil {
			return 0, err
		}
		return entity.ID, nil

	case model.TypeIP4Address, model.TypeIP6Address:
		entity, err := p.client.GetAddressByIP(ctx, id("configuration_id"), get("address"))
		if err != nil {
			return 0, err
		}
		return entity.ID, nil

	case model.TypeDNSZone:
		entity, err := p.client.GetZoneByFQDN(ctx, id("view_id"), get("fqdn"))
		if err != nil {
			return 0, err
		}
		return entity.ID, nil

	case model.TypeHostRecord, model.TypeAliasRecord, model.TypeMXRecord,
		model.TypeTXTRecord, model.TypeSRVRecord, model.TypeExternalHostRecord,
		model.TypeGenericRecord:
		row := &model.Row{ObjectType: op.ObjectType, Fields: map[string]string{"record_type": get("record_type")}}
		entity, err := p.client.GetRecord(ctx, id("view_id"), get("fqdn"), recordTypeName(row))
		if err != nil {
			return 0, err
		}
		return entity.ID, nil

	case model.TypeLocation:
		return one("/"+bam.CollectionLocations, map[string]any{"hierarchicalCode": get("code")})

	case model.TypeTagGroup:
		return one("/"+bam.CollectionTagGroups, map[string]any{"name": get("name")})

	case model.TypeTag:
		groupID, err := one("/"+bam.CollectionTagGroups, map[string]any{"name": get("tag_group")})
		if err != nil {
			return 0, err
		}
		path := fmt.Sprintf("/%s/%d/%s", bam.CollectionTagGroups, groupID, bam.CollectionTags)
		return one(path, map[string]any{"name": get("name")})

	case model.TypeDeviceType:
		return one("/"+bam.CollectionDeviceTypes, map[string]any{"name": get("name")})

	case model.TypeDeviceSubtype:
		return one("/"+bam.CollectionDeviceSubtypes, map[string]any{"name": get("name")})

	case model.TypeDevice:
		return underConfig(bam.CollectionDevices, get("name"))

	case model.TypeACL:
		return underConfig(bam.CollectionACLs, get("name"))

	case model.TypeMACPool:
		return underConfig(bam.CollectionMACPools, get("name"))

	case model.TypeMACAddress:
		path := fmt.Sprintf("/%s/%d/%s", bam.CollectionConfigurations, id("configuration_id"), bam.CollectionMACAddresses)
		return one(path, map[string]any{"address": get("mac_address")})

	case model.TypeUDFDefinition:
		return one("/"+bam.CollectionUDFDefinitions, map[string]any{"name": get("field_name")})

	case model.TypeUDLDefinition:
		return one("/"+bam.CollectionUDLDefinitions, map[string]any{"name": get("name")})
	}

	return 0, fmt.Errorf("%s: %w", op.ObjectType, errLateBound)
}
