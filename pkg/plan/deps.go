package plan

import (
	"context"
	"errors"
	"strings"

	"github.com/netgrove/bamsync/pkg/bam"
	"github.com/netgrove/bamsync/pkg/model"
)

// bindContainmentParent wires the kind-specific structural parent:
// a block's enclosing block, a network's block, an address's network, a
// record's zone, and the flat named parents (tag group, device type,
// MAC pool, parent location).
//
// Resolution order per parent: an explicit field wins, then a batch
// producer found by containment, then nothing; a missing implicit parent
// is left for the handler, which locates it server-side at execution.
func (p *Planner) bindContainmentParent(ctx context.Context, row *model.Row, op *Operation, par *parentsInfo, producers map[prodKey]string) error {
	switch row.ObjectType {
	case model.TypeIP4Block, model.TypeIP6Block:
		return p.bindPrefixParent(ctx, row, op, par, producers, "parent_block", "parent_id", "block", row.Get("cidr"))

	case model.TypeIP4Network, model.TypeIP6Network:
		return p.bindPrefixParent(ctx, row, op, par, producers, "block", "block_id", "block", row.Get("cidr"))

	case model.TypeIP4Address, model.TypeIP6Address:
		return p.bindPrefixParent(ctx, row, op, par, producers, "network", "network_id", "network", row.Get("address"))

	case model.TypeIPv4DHCPRange, model.TypeIPv6DHCPRange:
		return p.bindPrefixParent(ctx, row, op, par, producers, "network", "network_id", "network", row.Get("start"))

	case model.TypeDNSZone:
		p.bindEnclosingZone(row, op, par, producers, "parent_zone_id", row.Get("fqdn"), false)
		return nil

	case model.TypeHostRecord, model.TypeAliasRecord, model.TypeMXRecord,
		model.TypeTXTRecord, model.TypeSRVRecord, model.TypeExternalHostRecord,
		model.TypeGenericRecord:
		p.bindEnclosingZone(row, op, par, producers, "zone_id", row.Get("fqdn"), true)
		return nil

	case model.TypeTag:
		return p.bindNamedParent(ctx, row, op, par, producers,
			prodKey{"tag_group", row.Get("tag_group")}, "tag_group_id",
			func(ctx context.Context) (int64, error) {
				return p.resolver.ResolveNamed(ctx, model.TypeTagGroup, bam.CollectionTagGroups, row.Get("tag_group"))
			})

	case model.TypeDeviceSubtype, model.TypeDevice:
		name := row.Get("device_type")
		if name == "" {
			return nil
		}
		return p.bindNamedParent(ctx, row, op, par, producers,
			prodKey{"device_type", name}, "device_type_id",
			func(ctx context.Context) (int64, error) {
				return p.resolver.ResolveNamed(ctx, model.TypeDeviceType, bam.CollectionDeviceTypes, name)
			})

	case model.TypeMACAddress:
		pool := row.Get("pool")
		if pool == "" {
			return nil
		}
		return p.bindNamedParent(ctx, row, op, par, producers,
			prodKey{"mac_pool", joinIdentity(row.Configuration, pool)}, "pool_id",
			func(ctx context.Context) (int64, error) {
				if par.deferred {
					return 0, bam.ErrNotFound
				}
				return p.resolver.ResolveNamedUnder(ctx, model.TypeMACPool,
					bam.CollectionConfigurations, par.configID, bam.CollectionMACPools, pool)
			})

	case model.TypeLocation:
		code := row.Get("parent_code")
		if code == "" {
			return nil
		}
		return p.bindNamedParent(ctx, row, op, par, producers,
			prodKey{"location", code}, "parent_location_id",
			func(ctx context.Context) (int64, error) {
				return p.resolver.ResolveLocation(ctx, code)
			})
	}
	return nil
}

// bindPrefixParent handles CIDR-containment parents. The explicit field
// holds the parent CIDR; absent that, the batch producers are scanned
// for the longest prefix containing the row's own range or address.
func (p *Planner) bindPrefixParent(ctx context.Context, row *model.Row, op *Operation, par *parentsInfo, producers map[prodKey]string, field, idField, kind, target string) error {
	if explicit := row.Get(field); explicit != "" {
		key := prodKey{kind, joinIdentity(row.Configuration, explicit)}
		if producer, ok := producers[key]; ok && producer != row.RowID {
			op.addDeferred(idField, explicit, producer)
			par.deferred = true
			return nil
		}
		if par.deferred {
			return nil
		}
		id, err := p.resolveRange(ctx, kind, row.Configuration, explicit)
		if err != nil {
			return parentError(kind, explicit, err)
		}
		op.Payload[idField] = id
		return nil
	}

	// Implicit parent: longest containing prefix among batch producers.
	if cidr, producer, ok := longestContainingProducer(producers, kind, row.Configuration, target, row.RowID); ok {
		op.addDeferred(idField, cidr, producer)
		par.deferred = true
	}
	return nil
}

func (p *Planner) resolveRange(ctx context.Context, kind, configuration, cidr string) (int64, error) {
	if kind == "network" {
		return p.resolver.ResolveNetwork(ctx, configuration, cidr)
	}
	return p.resolver.ResolveBlock(ctx, configuration, cidr)
}

// longestContainingProducer scans the producer index for ranges of the
// given kind, in the same configuration, containing the target.
func longestContainingProducer(producers map[prodKey]string, kind, configuration, target, selfRowID string) (string, string, bool) {
	prefix := configuration + "|"
	bestLen := -1
	var bestCIDR, bestProducer string

	for key, producer := range producers {
		if key.kind != kind || producer == selfRowID {
			continue
		}
		if !strings.HasPrefix(key.identity, prefix) {
			continue
		}
		cidr := strings.TrimPrefix(key.identity, prefix)
		if !rangeContains(cidr, target) {
			continue
		}
		if l := model.PrefixLen(cidr); l > bestLen {
			bestLen = l
			bestCIDR = cidr
			bestProducer = producer
		}
	}
	return bestCIDR, bestProducer, bestLen >= 0
}

func rangeContains(outer, target string) bool {
	if model.PrefixContainsAddr(outer, target) {
		return true
	}
	return model.PrefixContains(outer, target)
}

// bindEnclosingZone depends a zone or record row on the batch zone whose
// FQDN is the longest suffix of its own. Records additionally require an
// enclosing zone; zones without one attach directly to the view.
func (p *Planner) bindEnclosingZone(row *model.Row, op *Operation, par *parentsInfo, producers map[prodKey]string, idField, fqdn string, isRecord bool) {
	prefix := joinIdentity(row.Configuration, row.View) + "|"
	bestLen := -1
	var bestZone, bestProducer string

	for key, producer := range producers {
		if key.kind != "zone" || producer == row.RowID {
			continue
		}
		if !strings.HasPrefix(key.identity, prefix) {
			continue
		}
		zone := strings.TrimPrefix(key.identity, prefix)
		if !zoneContains(zone, fqdn, isRecord) {
			continue
		}
		if len(zone) > bestLen {
			bestLen = len(zone)
			bestZone = zone
			bestProducer = producer
		}
	}

	if bestLen >= 0 {
		op.addDeferred(idField, bestZone, bestProducer)
		par.deferred = true
	}
}

// zoneContains reports whether fqdn sits inside zone. A record with the
// zone's exact FQDN (apex record) belongs to it; a zone never contains
// itself.
func zoneContains(zone, fqdn string, allowEqual bool) bool {
	if fqdn == zone {
		return allowEqual
	}
	return strings.HasSuffix(fqdn, "."+zone)
}

// bindNamedParent handles flat named parents (tag group, device type,
// MAC pool, parent location).
func (p *Planner) bindNamedParent(ctx context.Context, row *model.Row, op *Operation, par *parentsInfo, producers map[prodKey]string, key prodKey, idField string, resolve func(context.Context) (int64, error)) error {
	if producer, ok := producers[key]; ok && producer != row.RowID {
		op.addDeferred(idField, key.identity, producer)
		par.deferred = true
		return nil
	}

	id, err := resolve(ctx)
	if err != nil {
		if errors.Is(err, bam.ErrNotFound) {
			return parentError(key.kind, key.identity, err)
		}
		return err
	}
	op.Payload[idField] = id
	return nil
}

// addDeleteOrdering adds edges so child deletions run before their
// containing parent's deletion. Without these edges a parent delete
// could race its children and fail server-side.
func addDeleteOrdering(plan *Plan) {
	for i := range plan.Operations {
		parent := &plan.Operations[i]
		if parent.Type != model.ActionDelete {
			continue
		}
		for j := range plan.Operations {
			if i == j {
				continue
			}
			child := &plan.Operations[j]
			if child.Type != model.ActionDelete {
				continue
			}
			if deleteContains(parent, child) {
				parent.dependOn(child.RowID)
			}
		}
	}
}

// deleteContains reports whether parent structurally contains child, for
// the kinds whose identity makes containment decidable offline.
func deleteContains(parent, child *Operation) bool {
	pConfig, _ := parent.Payload["configuration"].(string)
	cConfig, _ := child.Payload["configuration"].(string)

	switch parent.ObjectType {
	case model.TypeConfiguration:
		name, _ := parent.Payload["name"].(string)
		return name != "" && name == cConfig

	case model.TypeView:
		if pConfig != cConfig {
			return false
		}
		name, _ := parent.Payload["name"].(string)
		view, _ := child.Payload["view"].(string)
		return name != "" && name == view

	case model.TypeIP4Block, model.TypeIP6Block, model.TypeIP4Network, model.TypeIP6Network:
		if pConfig != cConfig {
			return false
		}
		outer, _ := parent.Payload["cidr"].(string)
		if outer == "" {
			return false
		}
		switch child.ObjectType {
		case model.TypeIP4Block, model.TypeIP6Block, model.TypeIP4Network, model.TypeIP6Network:
			inner, _ := child.Payload["cidr"].(string)
			return inner != outer && model.PrefixContains(outer, inner)
		case model.TypeIP4Address, model.TypeIP6Address:
			addr, _ := child.Payload["address"].(string)
			return model.PrefixContainsAddr(outer, addr)
		case model.TypeIPv4DHCPRange, model.TypeIPv6DHCPRange:
			start, _ := child.Payload["start"].(string)
			return model.PrefixContainsAddr(outer, start)
		}

	case model.TypeDNSZone:
		if pConfig != cConfig {
			return false
		}
		pView, _ := parent.Payload["view"].(string)
		cView, _ := child.Payload["view"].(string)
		if pView != cView {
			return false
		}
		zone, _ := parent.Payload["fqdn"].(string)
		fqdn, _ := child.Payload["fqdn"].(string)
		if zone == "" || fqdn == "" {
			return false
		}
		if child.ObjectType == model.TypeDNSZone {
			return zoneContains(zone, fqdn, false)
		}
		return zoneContains(zone, fqdn, true)
	}
	return false
}
