package plan

import (
	"context"
	"errors"
	"fmt"

	"github.com/netgrove/bamsync/internal/logger"
	"github.com/netgrove/bamsync/pkg/bam"
	"github.com/netgrove/bamsync/pkg/model"
	"github.com/netgrove/bamsync/pkg/resolver"
)

// Planner builds a Plan from parsed rows.
type Planner struct {
	client   *bam.Client
	resolver *resolver.Resolver
	mode     UpdateMode
}

// New creates a planner. An empty mode defaults to upsert.
func New(client *bam.Client, res *resolver.Resolver, mode UpdateMode) (*Planner, error) {
	if mode == "" {
		mode = Upsert
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown update mode %q", mode)
	}
	return &Planner{client: client, resolver: res, mode: mode}, nil
}

// prodKey identifies what a create row produces, so later rows can
// depend on it instead of failing a remote lookup.
type prodKey struct {
	kind     string
	identity string
}

func joinIdentity(parts ...string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += "|" + p
	}
	return out
}

// producerKey returns the batch-local identity a create row will produce.
func producerKey(row *model.Row) (prodKey, bool) {
	switch row.ObjectType {
	case model.TypeConfiguration:
		return prodKey{"configuration", row.Get("name")}, true
	case model.TypeView:
		return prodKey{"view", joinIdentity(row.Configuration, row.Get("name"))}, true
	case model.TypeDNSZone:
		return prodKey{"zone", joinIdentity(row.Configuration, row.View, row.Get("fqdn"))}, true
	case model.TypeIP4Block, model.TypeIP6Block:
		return prodKey{"block", joinIdentity(row.Configuration, row.Get("cidr"))}, true
	case model.TypeIP4Network, model.TypeIP6Network:
		return prodKey{"network", joinIdentity(row.Configuration, row.Get("cidr"))}, true
	case model.TypeTagGroup:
		return prodKey{"tag_group", row.Get("name")}, true
	case model.TypeDeviceType:
		return prodKey{"device_type", row.Get("name")}, true
	case model.TypeMACPool:
		return prodKey{"mac_pool", joinIdentity(row.Configuration, row.Get("name"))}, true
	case model.TypeLocation:
		return prodKey{"location", row.Get("code")}, true
	}
	return prodKey{}, false
}

func indexProducers(rows []model.Row) map[prodKey]string {
	producers := make(map[prodKey]string)
	for i := range rows {
		row := &rows[i]
		if row.Action != model.ActionCreate {
			continue
		}
		if key, ok := producerKey(row); ok {
			producers[key] = row.RowID
		}
	}
	return producers
}

// Build plans every row in input order, collecting per-row errors rather
// than aborting, then derives delete-ordering edges.
func (p *Planner) Build(ctx context.Context, rows []model.Row) (*Plan, error) {
	producers := indexProducers(rows)
	out := &Plan{}

	for i := range rows {
		row := &rows[i]
		op, skipped, err := p.planRow(ctx, row, producers)
		switch {
		case err != nil:
			out.Errors = append(out.Errors, RowError{RowID: row.RowID, Err: err})
		case skipped != nil:
			out.Skipped = append(out.Skipped, *skipped)
		default:
			op.Index = len(out.Operations)
			out.Operations = append(out.Operations, *op)
		}
	}

	addDeleteOrdering(out)

	logger.Debug("plan built",
		"operations", len(out.Operations),
		"skipped", len(out.Skipped),
		"errors", len(out.Errors))
	return out, nil
}

// parentsInfo carries the concrete parent IDs the probe step needs.
// deferred is set when any parent awaits a batch producer, in which case
// the target cannot exist remotely and the probe is skipped.
type parentsInfo struct {
	deferred bool
	configID int64
	viewID   int64
}

func (p *Planner) planRow(ctx context.Context, row *model.Row, producers map[prodKey]string) (*Operation, *Skipped, error) {
	schema, ok := model.Schemas[row.ObjectType]
	if !ok {
		return nil, nil, fmt.Errorf("unknown object type %q", row.ObjectType)
	}

	op := &Operation{
		RowID:      row.RowID,
		Type:       row.Action,
		ObjectType: row.ObjectType,
		Payload:    buildPayload(row),
	}

	var par parentsInfo
	if schema.RequiresConfiguration {
		if err := p.bindConfiguration(ctx, row, op, &par, producers); err != nil {
			return nil, nil, err
		}
	}
	if schema.RequiresView {
		if err := p.bindView(ctx, row, op, &par, producers); err != nil {
			return nil, nil, err
		}
	}
	if err := p.bindContainmentParent(ctx, row, op, &par, producers); err != nil {
		return nil, nil, err
	}

	var resourceID int64
	var found, probed bool
	if par.deferred {
		// A parent is still pending creation, so the target cannot
		// exist yet.
		probed, found = true, false
	} else {
		var err error
		resourceID, found, probed, err = p.lookupTarget(ctx, row, par)
		if err != nil {
			return nil, nil, err
		}
	}

	switch row.Action {
	case model.ActionCreate:
		if !probed || !found {
			return op, nil, nil
		}
		if p.mode == CreateOnly {
			return nil, nil, fmt.Errorf("target already exists (id %d) and update mode is create_only", resourceID)
		}
		op.Type = model.ActionUpdate
		op.ResourceID = resourceID
		return op, nil, nil

	case model.ActionUpdate:
		if probed && !found {
			return nil, nil, fmt.Errorf("update target does not exist: %w", bam.ErrNotFound)
		}
		op.ResourceID = resourceID
		return op, nil, nil

	case model.ActionDelete:
		if probed && !found {
			return nil, &Skipped{RowID: row.RowID, Reason: "delete target is already absent"}, nil
		}
		op.ResourceID = resourceID
		return op, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown action %q", row.Action)
}

// buildPayload seeds the operation payload with the row's fields plus
// the naming context handlers need at execution time.
func buildPayload(row *model.Row) map[string]any {
	payload := make(map[string]any, len(row.Fields)+2)
	for k, v := range row.Fields {
		payload[k] = v
	}
	if row.Configuration != "" {
		payload["configuration"] = row.Configuration
	}
	if row.View != "" {
		payload["view"] = row.View
	}
	return payload
}

func (p *Planner) bindConfiguration(ctx context.Context, row *model.Row, op *Operation, par *parentsInfo, producers map[prodKey]string) error {
	key := prodKey{"configuration", row.Configuration}
	if producer, ok := producers[key]; ok && producer != row.RowID {
		op.addDeferred("configuration_id", row.Configuration, producer)
		par.deferred = true
		return nil
	}

	id, err := p.resolver.ResolveConfiguration(ctx, row.Configuration)
	if err != nil {
		return parentError("configuration", row.Configuration, err)
	}
	op.Payload["configuration_id"] = id
	par.configID = id
	return nil
}

func (p *Planner) bindView(ctx context.Context, row *model.Row, op *Operation, par *parentsInfo, producers map[prodKey]string) error {
	key := prodKey{"view", joinIdentity(row.Configuration, row.View)}
	if producer, ok := producers[key]; ok && producer != row.RowID {
		op.addDeferred("view_id", row.View, producer)
		par.deferred = true
		return nil
	}
	if par.deferred {
		// The configuration itself is pending; the view lookup has to
		// wait for execution time.
		return nil
	}

	id, err := p.resolver.ResolveView(ctx, row.Configuration, row.View)
	if err != nil {
		return parentError("view", row.View, err)
	}
	op.Payload["view_id"] = id
	par.viewID = id
	return nil
}

// parentError maps a failed parent resolution to the path-not-found
// kind; other facade errors pass through unchanged.
func parentError(kind, identity string, err error) error {
	if errors.Is(err, bam.ErrNotFound) {
		return fmt.Errorf("%s %q: %w", kind, identity,
			&bam.APIError{Kind: bam.KindPathNotFound, Message: "referenced parent not found"})
	}
	return fmt.Errorf("failed to resolve %s %q: %w", kind, identity, err)
}
