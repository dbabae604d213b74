package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/netgrove/bamsync/pkg/bam"
	"github.com/netgrove/bamsync/pkg/model"
	"github.com/netgrove/bamsync/pkg/plan"
)

func init() {
	register(model.TypeDNSZone, zoneHandler{})

	register(model.TypeHostRecord, recordHandler{typeName: "HostRecord", build: hostRecordBody})
	register(model.TypeAliasRecord, recordHandler{typeName: "AliasRecord", build: aliasRecordBody})
	register(model.TypeMXRecord, recordHandler{typeName: "MXRecord", build: mxRecordBody})
	register(model.TypeTXTRecord, recordHandler{typeName: "TXTRecord", build: txtRecordBody})
	register(model.TypeSRVRecord, recordHandler{typeName: "SRVRecord", build: srvRecordBody})
	register(model.TypeExternalHostRecord, recordHandler{typeName: "ExternalHostRecord", build: externalHostBody})
	register(model.TypeGenericRecord, recordHandler{typeName: "", build: genericRecordBody})

	register(model.TypeDNSDeploymentRole, roleHandler{service: "DNS"})
	register(model.TypeDHCPDeploymentRole, roleHandler{service: "DHCP"})
}

// ----------------------------------------------------------------------------
// Zone
// ----------------------------------------------------------------------------

type zoneHandler struct{}

func (zoneHandler) body(op *plan.Operation) map[string]any {
	body := map[string]any{
		"type":         "Zone",
		"absoluteName": str(op, "fqdn"),
	}
	if str(op, "deployable") != "" {
		body["deployable"] = boolean(op, "deployable")
	}
	setIf(body, "template", str(op, "template"))
	return body
}

// Create places the zone under its parent zone when the plan bound one,
// else directly under the view.
func (h zoneHandler) Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	if parentID := num(op, "parent_zone_id"); parentID != 0 {
		return client.CreateUnder(ctx, bam.CollectionZones, parentID, bam.CollectionZones, h.body(op))
	}
	vid, err := viewID(op)
	if err != nil {
		return nil, err
	}

	// An enclosing zone may already exist remotely.
	fqdn := str(op, "fqdn")
	if dot := strings.IndexByte(fqdn, '.'); dot >= 0 {
		parent, err := findEnclosingZone(ctx, client, vid, fqdn[dot+1:])
		if err == nil {
			return client.CreateUnder(ctx, bam.CollectionZones, parent.ID, bam.CollectionZones, h.body(op))
		}
		if !errors.Is(err, bam.ErrNotFound) {
			return nil, err
		}
	}
	return client.CreateUnder(ctx, bam.CollectionViews, vid, bam.CollectionZones, h.body(op))
}

func (h zoneHandler) Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	id, err := requireID(op)
	if err != nil {
		return nil, err
	}
	body := map[string]any{}
	if str(op, "deployable") != "" {
		body["deployable"] = boolean(op, "deployable")
	}
	return client.Update(ctx, bam.CollectionZones, id, body)
}

func (h zoneHandler) Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error {
	id, err := requireID(op)
	if err != nil {
		return err
	}
	return client.Delete(ctx, bam.CollectionZones, id, true)
}

// findEnclosingZone walks the FQDN's suffixes from most to least
// specific until one resolves to a zone.
func findEnclosingZone(ctx context.Context, client *bam.Client, viewID int64, fqdn string) (*bam.Entity, error) {
	labels := strings.Split(fqdn, ".")
	for i := 0; i < len(labels); i++ {
		candidate := strings.Join(labels[i:], ".")
		zone, err := client.GetZoneByFQDN(ctx, viewID, candidate)
		if err == nil {
			return zone, nil
		}
		if !errors.Is(err, bam.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("no zone encloses %s: %w", fqdn, bam.ErrNotFound)
}

// ----------------------------------------------------------------------------
// Resource records
// ----------------------------------------------------------------------------

type recordHandler struct {
	// typeName is the server discriminator; empty means the payload's
	// record_type field decides (generic records).
	typeName string
	build    func(op *plan.Operation) map[string]any
}

func hostRecordBody(op *plan.Operation) map[string]any {
	body := map[string]any{
		"type":         "HostRecord",
		"absoluteName": str(op, "fqdn"),
		"addresses":    list(op, "addresses"),
	}
	setIfNum(body, "ttl", op, "ttl")
	if str(op, "reverse_record") != "" {
		body["reverseRecord"] = boolean(op, "reverse_record")
	}
	return body
}

func aliasRecordBody(op *plan.Operation) map[string]any {
	body := map[string]any{
		"type":             "AliasRecord",
		"absoluteName":     str(op, "fqdn"),
		"linkedRecordName": str(op, "target"),
	}
	setIfNum(body, "ttl", op, "ttl")
	return body
}

func mxRecordBody(op *plan.Operation) map[string]any {
	body := map[string]any{
		"type":             "MXRecord",
		"absoluteName":     str(op, "fqdn"),
		"linkedRecordName": str(op, "target"),
		"priority":         num(op, "priority"),
	}
	setIfNum(body, "ttl", op, "ttl")
	return body
}

func txtRecordBody(op *plan.Operation) map[string]any {
	body := map[string]any{
		"type":         "TXTRecord",
		"absoluteName": str(op, "fqdn"),
		"text":         str(op, "text"),
	}
	setIfNum(body, "ttl", op, "ttl")
	return body
}

func srvRecordBody(op *plan.Operation) map[string]any {
	body := map[string]any{
		"type":             "SRVRecord",
		"absoluteName":     str(op, "fqdn"),
		"linkedRecordName": str(op, "target"),
		"priority":         num(op, "priority"),
		"weight":           num(op, "weight"),
		"port":             num(op, "port"),
	}
	setIfNum(body, "ttl", op, "ttl")
	return body
}

func externalHostBody(op *plan.Operation) map[string]any {
	return map[string]any{
		"type":         "ExternalHostRecord",
		"absoluteName": str(op, "fqdn"),
	}
}

func genericRecordBody(op *plan.Operation) map[string]any {
	body := map[string]any{
		"type":         "GenericRecord",
		"absoluteName": str(op, "fqdn"),
		"recordType":   str(op, "record_type"),
		"rdata":        str(op, "data"),
	}
	setIfNum(body, "ttl", op, "ttl")
	return body
}

func (h recordHandler) Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	zoneID := num(op, "zone_id")
	if zoneID == 0 {
		vid, err := viewID(op)
		if err != nil {
			return nil, err
		}
		zone, err := findEnclosingZone(ctx, client, vid, str(op, "fqdn"))
		if err != nil {
			return nil, fmt.Errorf("row %s: %w", op.RowID, err)
		}
		zoneID = zone.ID
	}
	return client.CreateUnder(ctx, bam.CollectionZones, zoneID, bam.CollectionRecords, h.build(op))
}

func (h recordHandler) Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	id, err := requireID(op)
	if err != nil {
		return nil, err
	}
	body := h.build(op)
	// absoluteName is the record's identity; a rename is a delete and
	// re-create, so never patch it.
	delete(body, "absoluteName")
	delete(body, "type")
	return client.Update(ctx, bam.CollectionRecords, id, body)
}

func (h recordHandler) Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error {
	id, err := requireID(op)
	if err != nil {
		return err
	}
	return client.Delete(ctx, bam.CollectionRecords, id, false)
}

// ----------------------------------------------------------------------------
// Deployment roles
// ----------------------------------------------------------------------------

// roleHandler manages DNS and DHCP deployment roles. The row's path
// field names the target: a CIDR addresses a network (falling back to a
// block), and "view/zone.fqdn" addresses a zone.
type roleHandler struct {
	service string
}

func (h roleHandler) target(ctx context.Context, client *bam.Client, op *plan.Operation) (string, int64, error) {
	path := str(op, "path")
	configID, err := configurationID(op)
	if err != nil {
		return "", 0, err
	}

	if model.ValidateCIDR(path) == nil {
		network, err := client.GetNetworkByRange(ctx, configID, path)
		if err == nil {
			return bam.CollectionNetworks, network.ID, nil
		}
		if !errors.Is(err, bam.ErrNotFound) {
			return "", 0, err
		}
		block, err := client.GetBlockByRange(ctx, configID, path)
		if err != nil {
			return "", 0, fmt.Errorf("row %s: role target %s: %w", op.RowID, path, err)
		}
		return bam.CollectionBlocks, block.ID, nil
	}

	viewName, fqdn, ok := strings.Cut(path, "/")
	if !ok {
		return "", 0, fmt.Errorf("row %s: role target %q is neither a CIDR nor view/zone", op.RowID, path)
	}
	view, err := client.GetViewByName(ctx, configID, viewName)
	if err != nil {
		return "", 0, fmt.Errorf("row %s: view %s: %w", op.RowID, viewName, err)
	}
	zone, err := client.GetZoneByFQDN(ctx, view.ID, fqdn)
	if err != nil {
		return "", 0, fmt.Errorf("row %s: zone %s: %w", op.RowID, fqdn, err)
	}
	return bam.CollectionZones, zone.ID, nil
}

func (h roleHandler) body(op *plan.Operation) map[string]any {
	body := map[string]any{
		"type":     "DeploymentRole",
		"service":  h.service,
		"roleType": str(op, "role_type"),
		"serverInterface": map[string]any{
			"name": str(op, "server_interface"),
		},
	}
	return body
}

func (h roleHandler) Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	collection, targetID, err := h.target(ctx, client, op)
	if err != nil {
		return nil, err
	}
	return client.CreateUnder(ctx, collection, targetID, bam.CollectionDeployRoles, h.body(op))
}

// locate finds the role on its target by service; each target carries at
// most one role per service.
func (h roleHandler) locate(ctx context.Context, client *bam.Client, op *plan.Operation) (int64, error) {
	if op.ResourceID != 0 {
		return op.ResourceID, nil
	}
	collection, targetID, err := h.target(ctx, client, op)
	if err != nil {
		return 0, err
	}
	entities, err := client.ListUnder(ctx, collection, targetID, bam.CollectionDeployRoles, bam.ListOptions{
		Filter:   bam.BuildFilter(map[string]any{"service": h.service}),
		MaxItems: 1,
	})
	if err != nil {
		return 0, err
	}
	if len(entities) == 0 {
		return 0, fmt.Errorf("row %s: %s role on %s: %w", op.RowID, h.service, str(op, "path"), bam.ErrNotFound)
	}
	return entities[0].ID, nil
}

func (h roleHandler) Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	id, err := h.locate(ctx, client, op)
	if err != nil {
		return nil, err
	}
	body := map[string]any{"roleType": str(op, "role_type")}
	return client.Update(ctx, bam.CollectionDeployRoles, id, body)
}

func (h roleHandler) Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error {
	id, err := h.locate(ctx, client, op)
	if err != nil {
		return err
	}
	return client.Delete(ctx, bam.CollectionDeployRoles, id, false)
}
