// Package model defines the typed row schemas for bamsync input files.
//
// Every input record is a Row: a shared envelope (row_id, action,
// object_type, configuration, view) plus a bag of per-kind fields that a
// registered Schema normalizes and validates. Rows are immutable after
// parsing; downstream components treat them as values.
package model

import (
	"sort"
	"strings"
)

// Action is the requested reconciliation action for a row.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Valid reports whether the action is one of the known values.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Inverse returns the compensating action used by rollback plans.
func (a Action) Inverse() Action {
	switch a {
	case ActionCreate:
		return ActionDelete
	case ActionDelete:
		return ActionCreate
	default:
		return ActionUpdate
	}
}

// ObjectType identifies the resource kind a row describes.
type ObjectType string

// The closed set of supported object types.
const (
	TypeConfiguration ObjectType = "configuration"
	TypeView          ObjectType = "view"

	TypeIP4Block   ObjectType = "ip4_block"
	TypeIP4Network ObjectType = "ip4_network"
	TypeIP4Address ObjectType = "ip4_address"
	TypeIP6Block   ObjectType = "ip6_block"
	TypeIP6Network ObjectType = "ip6_network"
	TypeIP6Address ObjectType = "ip6_address"

	TypeIPv4DHCPRange ObjectType = "ipv4_dhcp_range"
	TypeIPv6DHCPRange ObjectType = "ipv6_dhcp_range"

	TypeDHCPDeploymentRole ObjectType = "dhcp_deployment_role"
	TypeDNSDeploymentRole  ObjectType = "dns_deployment_role"

	TypeDHCPv4ClientOption  ObjectType = "dhcpv4_client_deployment_option"
	TypeDHCPv4ServiceOption ObjectType = "dhcpv4_service_deployment_option"

	TypeDNSZone            ObjectType = "dns_zone"
	TypeHostRecord         ObjectType = "host_record"
	TypeAliasRecord        ObjectType = "alias_record"
	TypeMXRecord           ObjectType = "mx_record"
	TypeTXTRecord          ObjectType = "txt_record"
	TypeSRVRecord          ObjectType = "srv_record"
	TypeExternalHostRecord ObjectType = "external_host_record"
	TypeGenericRecord      ObjectType = "generic_record"

	TypeLocation        ObjectType = "location"
	TypeUDFDefinition   ObjectType = "udf_definition"
	TypeUDLDefinition   ObjectType = "udl_definition"
	TypeUserDefinedLink ObjectType = "user_defined_link"

	TypeMACPool    ObjectType = "mac_pool"
	TypeMACAddress ObjectType = "mac_address"

	TypeTagGroup    ObjectType = "tag_group"
	TypeTag         ObjectType = "tag"
	TypeResourceTag ObjectType = "resource_tag"

	TypeDeviceType    ObjectType = "device_type"
	TypeDeviceSubtype ObjectType = "device_subtype"
	TypeDevice        ObjectType = "device"
	TypeDeviceAddress ObjectType = "device_address"

	TypeACL         ObjectType = "acl"
	TypeAccessRight ObjectType = "access_right"
)

// ProtectedTypes are the kinds whose deletion requires the
// allow-dangerous-operations flag.
var ProtectedTypes = map[ObjectType]bool{
	TypeConfiguration: true,
	TypeView:          true,
	TypeIP4Block:      true,
	TypeIP6Block:      true,
	TypeIP4Network:    true,
	TypeIP6Network:    true,
	TypeDNSZone:       true,
}

// Protected reports whether deleting this kind requires the dangerous flag.
func (t ObjectType) Protected() bool {
	return ProtectedTypes[t]
}

// ListDelimiter separates values in multi-valued CSV cells.
const ListDelimiter = "|"

// Row is a single parsed input record.
//
// The envelope fields are structural and shared by every kind; everything
// else lives in Fields, keyed by the (normalized) column name. Fields never
// contains the envelope columns.
type Row struct {
	RowID         string
	Action        Action
	ObjectType    ObjectType
	Configuration string
	View          string
	Fields        map[string]string
}

// Get returns the named field, or the empty string when absent.
func (r *Row) Get(name string) string {
	return r.Fields[name]
}

// Has reports whether the named field is present and non-empty.
func (r *Row) Has(name string) bool {
	return r.Fields[name] != ""
}

// List returns a multi-valued field split on the list delimiter.
// Empty elements are dropped; an absent field yields nil.
func (r *Row) List(name string) []string {
	raw := r.Fields[name]
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ListDelimiter)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FieldNames returns the row's field names in sorted order.
func (r *Row) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the row.
func (r *Row) Clone() *Row {
	fields := make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	out := *r
	out.Fields = fields
	return &out
}

// ValidationError describes a single schema violation. Errors are collected
// by the parser rather than thrown so a run can report many at once.
type ValidationError struct {
	RowID   string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return "row " + e.RowID + ": " + e.Message
	}
	return "row " + e.RowID + ": field " + e.Field + ": " + e.Message
}
