package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/netgrove/bamsync/pkg/bam"
	"github.com/netgrove/bamsync/pkg/model"
	"github.com/netgrove/bamsync/pkg/plan"
)

func init() {
	register(model.TypeLocation, locationHandler{})
	register(model.TypeUDFDefinition, udfHandler{})
	register(model.TypeUDLDefinition, udlHandler{})
	register(model.TypeUserDefinedLink, linkHandler{})
	register(model.TypeTagGroup, tagGroupHandler{})
	register(model.TypeTag, tagHandler{})
	register(model.TypeResourceTag, resourceTagHandler{})
	register(model.TypeDeviceType, deviceTypeHandler{})
	register(model.TypeDeviceSubtype, deviceSubtypeHandler{})
	register(model.TypeDevice, deviceHandler{})
	register(model.TypeDeviceAddress, deviceAddressHandler{})
	register(model.TypeACL, aclHandler{})
	register(model.TypeAccessRight, accessRightHandler{})
}

// parseResourceRef parses "collection/id" references used by resource
// tags and access rights, e.g. "networks/123".
func parseResourceRef(s string) (string, int64, error) {
	collection, rawID, ok := strings.Cut(s, "/")
	if !ok {
		return "", 0, fmt.Errorf("resource reference %q is not collection/id", s)
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("resource reference %q has a bad id", s)
	}
	return collection, id, nil
}

// ----------------------------------------------------------------------------
// Location
// ----------------------------------------------------------------------------

type locationHandler struct{}

func (locationHandler) body(op *plan.Operation) map[string]any {
	body := map[string]any{
		"type":             "Location",
		"hierarchicalCode": str(op, "code"),
	}
	setIf(body, "name", str(op, "name"))
	return body
}

func (h locationHandler) Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	if parentID := num(op, "parent_location_id"); parentID != 0 {
		return client.CreateUnder(ctx, bam.CollectionLocations, parentID, bam.CollectionLocations, h.body(op))
	}
	return client.Create(ctx, bam.CollectionLocations, h.body(op))
}

func (h locationHandler) Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	id, err := requireID(op)
	if err != nil {
		return nil, err
	}
	body := map[string]any{}
	setIf(body, "name", str(op, "name"))
	return client.Update(ctx, bam.CollectionLocations, id, body)
}

func (h locationHandler) Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error {
	id, err := requireID(op)
	if err != nil {
		return err
	}
	return client.Delete(ctx, bam.CollectionLocations, id, false)
}

// ----------------------------------------------------------------------------
// User-defined field definitions
// ----------------------------------------------------------------------------

type udfHandler struct{}

func (udfHandler) body(op *plan.Operation) map[string]any {
	body := map[string]any{
		"type":        "UserDefinedFieldDefinition",
		"name":        str(op, "field_name"),
		"objectClass": str(op, "object_class"),
	}
	setIf(body, "displayName", str(op, "display_name"))
	setIf(body, "fieldType", str(op, "field_type"))
	setIf(body, "defaultValue", str(op, "default_value"))
	if str(op, "required") != "" {
		body["required"] = boolean(op, "required")
	}
	return body
}

func (h udfHandler) Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	return client.Create(ctx, bam.CollectionUDFDefinitions, h.body(op))
}

func (h udfHandler) Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	id, err := requireID(op)
	if err != nil {
		return nil, err
	}
	body := h.body(op)
	delete(body, "type")
	delete(body, "name")
	delete(body, "objectClass")
	return client.Update(ctx, bam.CollectionUDFDefinitions, id, body)
}

func (h udfHandler) Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error {
	id, err := requireID(op)
	if err != nil {
		return err
	}
	return client.Delete(ctx, bam.CollectionUDFDefinitions, id, false)
}

// ----------------------------------------------------------------------------
// User-defined link definitions and links
// ----------------------------------------------------------------------------

type udlHandler struct{}

func (udlHandler) Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	body := map[string]any{
		"type":            "UserDefinedLinkDefinition",
		"name":            str(op, "name"),
		"sourceType":      str(op, "source_type"),
		"destinationType": str(op, "destination_type"),
	}
	setIf(body, "displayName", str(op, "display_name"))
	return client.Create(ctx, bam.CollectionUDLDefinitions, body)
}

func (udlHandler) Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	id, err := requireID(op)
	if err != nil {
		return nil, err
	}
	body := map[string]any{}
	setIf(body, "displayName", str(op, "display_name"))
	return client.Update(ctx, bam.CollectionUDLDefinitions, id, body)
}

func (udlHandler) Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error {
	id, err := requireID(op)
	if err != nil {
		return err
	}
	return client.Delete(ctx, bam.CollectionUDLDefinitions, id, false)
}

// linkHandler manages link instances under a definition. Links are
// immutable: changing endpoints is a delete and re-create.
type linkHandler struct{}

func (linkHandler) definitionID(ctx context.Context, client *bam.Client, op *plan.Operation) (int64, error) {
	entity, err := client.ListOne(ctx, "/"+bam.CollectionUDLDefinitions, bam.ListOptions{
		Filter: bam.BuildFilter(map[string]any{"name": str(op, "link_name")}),
	})
	if err != nil {
		return 0, fmt.Errorf("row %s: link definition %s: %w", op.RowID, str(op, "link_name"), err)
	}
	return entity.ID, nil
}

func (h linkHandler) Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	defID, err := h.definitionID(ctx, client, op)
	if err != nil {
		return nil, err
	}
	sourceColl, sourceID, err := parseResourceRef(str(op, "source_path"))
	if err != nil {
		return nil, fmt.Errorf("row %s: %w", op.RowID, err)
	}
	destColl, destID, err := parseResourceRef(str(op, "destination_path"))
	if err != nil {
		return nil, fmt.Errorf("row %s: %w", op.RowID, err)
	}
	body := map[string]any{
		"source":      map[string]any{"id": sourceID, "collection": sourceColl},
		"destination": map[string]any{"id": destID, "collection": destColl},
	}
	return client.CreateUnder(ctx, bam.CollectionUDLDefinitions, defID, "links", body)
}

func (linkHandler) Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	return nil, fmt.Errorf("user_defined_link: %w", ErrUnsupportedUpdate)
}

func (h linkHandler) Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error {
	id := op.ResourceID
	if id == 0 {
		defID, err := h.definitionID(ctx, client, op)
		if err != nil {
			return err
		}
		_, sourceID, err := parseResourceRef(str(op, "source_path"))
		if err != nil {
			return fmt.Errorf("row %s: %w", op.RowID, err)
		}
		path := fmt.Sprintf("/%s/%d/links", bam.CollectionUDLDefinitions, defID)
		entity, err := client.ListOne(ctx, path, bam.ListOptions{
			Filter: bam.BuildFilter(map[string]any{"sourceId": sourceID}),
		})
		if err != nil {
			return fmt.Errorf("row %s: link instance: %w", op.RowID, err)
		}
		id = entity.ID
	}
	return client.Delete(ctx, "userDefinedLinks", id, false)
}

// ----------------------------------------------------------------------------
// Tags
// ----------------------------------------------------------------------------

type tagGroupHandler struct{}

func (tagGroupHandler) Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	return client.Create(ctx, bam.CollectionTagGroups, map[string]any{
		"type": "TagGroup",
		"name": str(op, "name"),
	})
}

func (tagGroupHandler) Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	id, err := requireID(op)
	if err != nil {
		return nil, err
	}
	return client.Update(ctx, bam.CollectionTagGroups, id, map[string]any{"name": str(op, "name")})
}

func (tagGroupHandler) Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error {
	id, err := requireID(op)
	if err != nil {
		return err
	}
	return client.Delete(ctx, bam.CollectionTagGroups, id, false)
}

// tagHandler creates tags inside a group, or under a parent tag when
// the row names one. Tags are immutable on the server.
type tagHandler struct{}

func (h tagHandler) groupID(ctx context.Context, client *bam.Client, op *plan.Operation) (int64, error) {
	if id := num(op, "tag_group_id"); id != 0 {
		return id, nil
	}
	entity, err := client.ListOne(ctx, "/"+bam.CollectionTagGroups, bam.ListOptions{
		Filter: bam.BuildFilter(map[string]any{"name": str(op, "tag_group")}),
	})
	if err != nil {
		return 0, fmt.Errorf("row %s: tag group %s: %w", op.RowID, str(op, "tag_group"), err)
	}
	return entity.ID, nil
}

func (h tagHandler) Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	groupID, err := h.groupID(ctx, client, op)
	if err != nil {
		return nil, err
	}
	body := map[string]any{"type": "Tag", "name": str(op, "name")}

	if parent := str(op, "parent_tag"); parent != "" {
		path := fmt.Sprintf("/%s/%d/%s", bam.CollectionTagGroups, groupID, bam.CollectionTags)
		parentTag, err := client.ListOne(ctx, path, bam.ListOptions{
			Filter: bam.BuildFilter(map[string]any{"name": parent}),
		})
		if err != nil {
			return nil, fmt.Errorf("row %s: parent tag %s: %w", op.RowID, parent, err)
		}
		return client.CreateUnder(ctx, bam.CollectionTags, parentTag.ID, bam.CollectionTags, body)
	}
	return client.CreateUnder(ctx, bam.CollectionTagGroups, groupID, bam.CollectionTags, body)
}

func (tagHandler) Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	return nil, fmt.Errorf("tag: %w", ErrUnsupportedUpdate)
}

func (tagHandler) Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error {
	id, err := requireID(op)
	if err != nil {
		return err
	}
	return client.Delete(ctx, bam.CollectionTags, id, false)
}

// resourceTagHandler assigns tags to resources. The tag_path is
// "group/tag"; the resource_path is "collection/id". Assignments are
// immutable links.
type resourceTagHandler struct{}

func (h resourceTagHandler) resolveTag(ctx context.Context, client *bam.Client, op *plan.Operation) (int64, error) {
	group, tag, ok := strings.Cut(str(op, "tag_path"), "/")
	if !ok {
		return 0, fmt.Errorf("row %s: tag path %q is not group/tag", op.RowID, str(op, "tag_path"))
	}
	groupEntity, err := client.ListOne(ctx, "/"+bam.CollectionTagGroups, bam.ListOptions{
		Filter: bam.BuildFilter(map[string]any{"name": group}),
	})
	if err != nil {
		return 0, fmt.Errorf("row %s: tag group %s: %w", op.RowID, group, err)
	}
	path := fmt.Sprintf("/%s/%d/%s", bam.CollectionTagGroups, groupEntity.ID, bam.CollectionTags)
	tagEntity, err := client.ListOne(ctx, path, bam.ListOptions{
		Filter: bam.BuildFilter(map[string]any{"name": tag}),
	})
	if err != nil {
		return 0, fmt.Errorf("row %s: tag %s: %w", op.RowID, tag, err)
	}
	return tagEntity.ID, nil
}

func (h resourceTagHandler) Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	tagID, err := h.resolveTag(ctx, client, op)
	if err != nil {
		return nil, err
	}
	collection, resourceID, err := parseResourceRef(str(op, "resource_path"))
	if err != nil {
		return nil, fmt.Errorf("row %s: %w", op.RowID, err)
	}
	return client.CreateUnder(ctx, collection, resourceID, bam.CollectionTags, map[string]any{"id": tagID})
}

func (resourceTagHandler) Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	return nil, fmt.Errorf("resource_tag: %w", ErrUnsupportedUpdate)
}

func (h resourceTagHandler) Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error {
	tagID, err := h.resolveTag(ctx, client, op)
	if err != nil {
		return err
	}
	collection, resourceID, err := parseResourceRef(str(op, "resource_path"))
	if err != nil {
		return fmt.Errorf("row %s: %w", op.RowID, err)
	}
	scoped := fmt.Sprintf("%s/%d/%s", collection, resourceID, bam.CollectionTags)
	return client.Delete(ctx, scoped, tagID, false)
}

// ----------------------------------------------------------------------------
// Devices
// ----------------------------------------------------------------------------

type deviceTypeHandler struct{}

func (deviceTypeHandler) Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	return client.Create(ctx, bam.CollectionDeviceTypes, map[string]any{
		"type": "DeviceType",
		"name": str(op, "name"),
	})
}

func (deviceTypeHandler) Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	id, err := requireID(op)
	if err != nil {
		return nil, err
	}
	return client.Update(ctx, bam.CollectionDeviceTypes, id, map[string]any{"name": str(op, "name")})
}

func (deviceTypeHandler) Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error {
	id, err := requireID(op)
	if err != nil {
		return err
	}
	return client.Delete(ctx, bam.CollectionDeviceTypes, id, false)
}

type deviceSubtypeHandler struct{}

func (h deviceSubtypeHandler) Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	typeID := num(op, "device_type_id")
	if typeID == 0 {
		entity, err := client.ListOne(ctx, "/"+bam.CollectionDeviceTypes, bam.ListOptions{
			Filter: bam.BuildFilter(map[string]any{"name": str(op, "device_type")}),
		})
		if err != nil {
			return nil, fmt.Errorf("row %s: device type %s: %w", op.RowID, str(op, "device_type"), err)
		}
		typeID = entity.ID
	}
	body := map[string]any{"type": "DeviceSubtype", "name": str(op, "name")}
	return client.CreateUnder(ctx, bam.CollectionDeviceTypes, typeID, bam.CollectionDeviceSubtypes, body)
}

func (deviceSubtypeHandler) Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	id, err := requireID(op)
	if err != nil {
		return nil, err
	}
	return client.Update(ctx, bam.CollectionDeviceSubtypes, id, map[string]any{"name": str(op, "name")})
}

func (deviceSubtypeHandler) Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error {
	id, err := requireID(op)
	if err != nil {
		return err
	}
	return client.Delete(ctx, bam.CollectionDeviceSubtypes, id, false)
}

type deviceHandler struct{}

func (h deviceHandler) body(op *plan.Operation) map[string]any {
	body := map[string]any{"type": "Device", "name": str(op, "name")}
	if typeID := num(op, "device_type_id"); typeID != 0 {
		body["deviceType"] = map[string]any{"id": typeID}
	} else {
		setIf(body, "deviceTypeName", str(op, "device_type"))
	}
	setIf(body, "deviceSubtypeName", str(op, "device_subtype"))
	if macs := list(op, "mac_addresses"); len(macs) > 0 {
		body["macAddresses"] = macs
	}
	return body
}

func (h deviceHandler) Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	configID, err := configurationID(op)
	if err != nil {
		return nil, err
	}
	return client.CreateUnder(ctx, bam.CollectionConfigurations, configID, bam.CollectionDevices, h.body(op))
}

func (h deviceHandler) Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	id, err := requireID(op)
	if err != nil {
		return nil, err
	}
	body := h.body(op)
	delete(body, "type")
	return client.Update(ctx, bam.CollectionDevices, id, body)
}

func (h deviceHandler) Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error {
	id, err := requireID(op)
	if err != nil {
		return err
	}
	return client.Delete(ctx, bam.CollectionDevices, id, false)
}

// deviceAddressHandler attaches addresses to a device. Attachments are
// immutable.
type deviceAddressHandler struct{}

func (h deviceAddressHandler) deviceID(ctx context.Context, client *bam.Client, op *plan.Operation) (int64, error) {
	configID, err := configurationID(op)
	if err != nil {
		return 0, err
	}
	path := fmt.Sprintf("/%s/%d/%s", bam.CollectionConfigurations, configID, bam.CollectionDevices)
	entity, err := client.ListOne(ctx, path, bam.ListOptions{
		Filter: bam.BuildFilter(map[string]any{"name": str(op, "device")}),
	})
	if err != nil {
		return 0, fmt.Errorf("row %s: device %s: %w", op.RowID, str(op, "device"), err)
	}
	return entity.ID, nil
}

func (h deviceAddressHandler) Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	deviceID, err := h.deviceID(ctx, client, op)
	if err != nil {
		return nil, err
	}
	body := map[string]any{"address": str(op, "address")}
	return client.CreateUnder(ctx, bam.CollectionDevices, deviceID, bam.CollectionAddresses, body)
}

func (deviceAddressHandler) Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	return nil, fmt.Errorf("device_address: %w", ErrUnsupportedUpdate)
}

func (h deviceAddressHandler) Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error {
	id := op.ResourceID
	if id == 0 {
		deviceID, err := h.deviceID(ctx, client, op)
		if err != nil {
			return err
		}
		path := fmt.Sprintf("/%s/%d/%s", bam.CollectionDevices, deviceID, bam.CollectionAddresses)
		entity, err := client.ListOne(ctx, path, bam.ListOptions{
			Filter: bam.BuildFilter(map[string]any{"address": str(op, "address")}),
		})
		if err != nil {
			return fmt.Errorf("row %s: device address %s: %w", op.RowID, str(op, "address"), err)
		}
		id = entity.ID
	}
	return client.Delete(ctx, bam.CollectionAddresses, id, false)
}

// ----------------------------------------------------------------------------
// ACLs and access rights
// ----------------------------------------------------------------------------

type aclHandler struct{}

func (h aclHandler) body(op *plan.Operation) map[string]any {
	body := map[string]any{"type": "ACL", "name": str(op, "name")}
	if entries := list(op, "addresses"); len(entries) > 0 {
		body["matchElements"] = entries
	}
	return body
}

func (h aclHandler) Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	configID, err := configurationID(op)
	if err != nil {
		return nil, err
	}
	return client.CreateUnder(ctx, bam.CollectionConfigurations, configID, bam.CollectionACLs, h.body(op))
}

func (h aclHandler) Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	id, err := requireID(op)
	if err != nil {
		return nil, err
	}
	body := h.body(op)
	delete(body, "type")
	return client.Update(ctx, bam.CollectionACLs, id, body)
}

func (h aclHandler) Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error {
	id, err := requireID(op)
	if err != nil {
		return err
	}
	return client.Delete(ctx, bam.CollectionACLs, id, false)
}

// accessRightHandler manages per-principal access levels on resources.
// The resource_path is "collection/id".
type accessRightHandler struct{}

func (h accessRightHandler) Create(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	collection, resourceID, err := parseResourceRef(str(op, "resource_path"))
	if err != nil {
		return nil, fmt.Errorf("row %s: %w", op.RowID, err)
	}
	userType := str(op, "user_type")
	if userType == "" {
		userType = "user"
	}
	body := map[string]any{
		"type":        "AccessRight",
		"accessLevel": str(op, "access_level"),
		"principal": map[string]any{
			"name": str(op, "principal"),
			"type": strings.ToUpper(userType),
		},
	}
	return client.CreateUnder(ctx, collection, resourceID, bam.CollectionAccessRights, body)
}

func (h accessRightHandler) locate(ctx context.Context, client *bam.Client, op *plan.Operation) (int64, error) {
	if op.ResourceID != 0 {
		return op.ResourceID, nil
	}
	collection, resourceID, err := parseResourceRef(str(op, "resource_path"))
	if err != nil {
		return 0, fmt.Errorf("row %s: %w", op.RowID, err)
	}
	path := fmt.Sprintf("/%s/%d/%s", collection, resourceID, bam.CollectionAccessRights)
	entity, err := client.ListOne(ctx, path, bam.ListOptions{
		Filter: bam.BuildFilter(map[string]any{"principal": str(op, "principal")}),
	})
	if err != nil {
		return 0, fmt.Errorf("row %s: access right for %s: %w", op.RowID, str(op, "principal"), err)
	}
	return entity.ID, nil
}

func (h accessRightHandler) Update(ctx context.Context, client *bam.Client, op *plan.Operation) (*bam.Entity, error) {
	id, err := h.locate(ctx, client, op)
	if err != nil {
		return nil, err
	}
	return client.Update(ctx, bam.CollectionAccessRights, id, map[string]any{
		"accessLevel": str(op, "access_level"),
	})
}

func (h accessRightHandler) Delete(ctx context.Context, client *bam.Client, op *plan.Operation) error {
	id, err := h.locate(ctx, client, op)
	if err != nil {
		return err
	}
	return client.Delete(ctx, bam.CollectionAccessRights, id, false)
}
