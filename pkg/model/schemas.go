package model

import "strings"

// Schemas is the registry of row schemas, keyed by object type.
//
// Adding a resource kind means adding an entry here, a handler in
// pkg/handlers, and nothing else: the parser, planner, and rollback
// generator are all schema-driven.
var Schemas = map[ObjectType]*Schema{}

func register(s *Schema) {
	Schemas[s.Type] = s
}

// Common normalizers.

func normUpper(s string) (string, error) { return strings.ToUpper(s), nil }
func normLower(s string) (string, error) { return strings.ToLower(s), nil }
func normFQDN(s string) (string, error)  { return NormalizeFQDN(s), nil }
func normMAC(s string) (string, error)   { return NormalizeMAC(s) }
func normBool(s string) (string, error)  { return strings.ToLower(s), nil }

// validateIPOrCIDR accepts a bare address or a prefix (ACL entries).
func validateIPOrCIDR(s string) error {
	if ValidateIP(s) == nil {
		return nil
	}
	return ValidateCIDR(s)
}

func init() {
	register(&Schema{
		Type: TypeConfiguration,
		Fields: []FieldSpec{
			{Name: "name", Required: true, Identity: true},
			{Name: "description"},
		},
	})

	register(&Schema{
		Type:                  TypeView,
		RequiresConfiguration: true,
		Fields: []FieldSpec{
			{Name: "name", Required: true, Identity: true},
		},
	})

	register(&Schema{
		Type:                  TypeIP4Block,
		RequiresConfiguration: true,
		Fields: []FieldSpec{
			{Name: "cidr", Required: true, Identity: true, Validate: ValidateCIDR},
			{Name: "name"},
			{Name: "parent_block", Validate: ValidateCIDR},
			{Name: "allow_duplicate_host", Normalize: normBool, Validate: ValidateBool},
		},
	})

	register(&Schema{
		Type:                  TypeIP4Network,
		RequiresConfiguration: true,
		Fields: []FieldSpec{
			{Name: "cidr", Required: true, Identity: true, Validate: ValidateCIDR},
			{Name: "name"},
			{Name: "block", Validate: ValidateCIDR},
			{Name: "gateway", Validate: ValidateIPv4},
			{Name: "default_view"},
		},
	})

	register(&Schema{
		Type:                  TypeIP4Address,
		RequiresConfiguration: true,
		Fields: []FieldSpec{
			{Name: "address", Required: true, Identity: true, Validate: ValidateIPv4},
			{Name: "network", Validate: ValidateCIDR},
			{Name: "name"},
			{Name: "mac_address", Normalize: normMAC},
			{Name: "state", Normalize: normUpper,
				Validate: ValidateEnum("STATIC", "DHCP_RESERVED", "GATEWAY", "RESERVED")},
		},
	})

	register(&Schema{
		Type:                  TypeIP6Block,
		RequiresConfiguration: true,
		Fields: []FieldSpec{
			{Name: "cidr", Required: true, Identity: true, Validate: ValidateCIDR},
			{Name: "name"},
			{Name: "parent_block", Validate: ValidateCIDR},
		},
	})

	register(&Schema{
		Type:                  TypeIP6Network,
		RequiresConfiguration: true,
		Fields: []FieldSpec{
			{Name: "cidr", Required: true, Identity: true, Validate: ValidateCIDR},
			{Name: "name"},
			{Name: "block", Validate: ValidateCIDR},
		},
	})

	register(&Schema{
		Type:                  TypeIP6Address,
		RequiresConfiguration: true,
		Fields: []FieldSpec{
			{Name: "address", Required: true, Identity: true, Validate: ValidateIPv6},
			{Name: "network", Validate: ValidateCIDR},
			{Name: "name"},
			{Name: "mac_address", Normalize: normMAC},
			{Name: "state", Normalize: normUpper, Validate: ValidateEnum("STATIC", "DHCP_RESERVED")},
		},
	})

	register(&Schema{
		Type:                  TypeIPv4DHCPRange,
		RequiresConfiguration: true,
		Fields: []FieldSpec{
			{Name: "network", Required: true, Identity: true, Validate: ValidateCIDR},
			{Name: "start", Required: true, Identity: true, Validate: ValidateIPv4},
			{Name: "end", Required: true, Identity: true, Validate: ValidateIPv4},
			{Name: "name"},
		},
	})

	register(&Schema{
		Type:                  TypeIPv6DHCPRange,
		RequiresConfiguration: true,
		Fields: []FieldSpec{
			{Name: "network", Required: true, Identity: true, Validate: ValidateCIDR},
			{Name: "start", Required: true, Identity: true, Validate: ValidateIPv6},
			{Name: "end", Required: true, Identity: true, Validate: ValidateIPv6},
			{Name: "name"},
		},
	})

	register(&Schema{
		Type:                  TypeDHCPDeploymentRole,
		RequiresConfiguration: true,
		Fields: []FieldSpec{
			{Name: "path", Required: true, Identity: true},
			{Name: "role_type", Required: true, Normalize: normUpper,
				Validate: ValidateEnum("MASTER", "NONE")},
			{Name: "server_interface", Required: true},
			{Name: "secondary_interface"},
		},
	})

	register(&Schema{
		Type:                  TypeDNSDeploymentRole,
		RequiresConfiguration: true,
		Fields: []FieldSpec{
			{Name: "path", Required: true, Identity: true},
			{Name: "role_type", Required: true, Normalize: normUpper,
				Validate: ValidateEnum("MASTER", "SLAVE", "HIDDEN_MASTER", "STEALTH_SLAVE", "FORWARDER", "STUB", "RECURSION", "NONE")},
			{Name: "server_interface", Required: true},
			{Name: "zone_transfer_interface"},
		},
	})

	dhcpOption := []FieldSpec{
		{Name: "option_name", Required: true, Identity: true},
		{Name: "option_code", Validate: ValidateOptionCode},
		{Name: "option_value", Required: true, List: true},
		{Name: "server_scope", Normalize: normLower, Validate: ValidateServerScope},
		{Name: "server"},
		{Name: "path"},
	}
	register(&Schema{Type: TypeDHCPv4ClientOption, RequiresConfiguration: true, Fields: dhcpOption})
	register(&Schema{Type: TypeDHCPv4ServiceOption, RequiresConfiguration: true, Fields: dhcpOption})

	register(&Schema{
		Type:                  TypeDNSZone,
		RequiresConfiguration: true,
		RequiresView:          true,
		Fields: []FieldSpec{
			{Name: "fqdn", Required: true, Identity: true, Normalize: normFQDN, Validate: ValidateFQDN},
			{Name: "deployable", Normalize: normBool, Validate: ValidateBool},
			{Name: "template"},
		},
	})

	register(&Schema{
		Type:                  TypeHostRecord,
		RequiresConfiguration: true,
		RequiresView:          true,
		Fields: []FieldSpec{
			{Name: "fqdn", Required: true, Identity: true, Normalize: normFQDN, Validate: ValidateFQDN},
			{Name: "addresses", Required: true, List: true, Validate: ValidateIP},
			{Name: "ttl", Validate: ValidateUint},
			{Name: "reverse_record", Normalize: normBool, Validate: ValidateBool},
		},
	})

	register(&Schema{
		Type:                  TypeAliasRecord,
		RequiresConfiguration: true,
		RequiresView:          true,
		Fields: []FieldSpec{
			{Name: "fqdn", Required: true, Identity: true, Normalize: normFQDN, Validate: ValidateFQDN},
			{Name: "target", Required: true, Normalize: normFQDN, Validate: ValidateFQDN},
			{Name: "ttl", Validate: ValidateUint},
		},
	})

	register(&Schema{
		Type:                  TypeMXRecord,
		RequiresConfiguration: true,
		RequiresView:          true,
		Fields: []FieldSpec{
			{Name: "fqdn", Required: true, Identity: true, Normalize: normFQDN, Validate: ValidateFQDN},
			{Name: "target", Required: true, Normalize: normFQDN, Validate: ValidateFQDN},
			{Name: "priority", Required: true, Validate: ValidateUint},
			{Name: "ttl", Validate: ValidateUint},
		},
	})

	register(&Schema{
		Type:                  TypeTXTRecord,
		RequiresConfiguration: true,
		RequiresView:          true,
		Fields: []FieldSpec{
			{Name: "fqdn", Required: true, Identity: true, Normalize: normFQDN, Validate: ValidateFQDN},
			{Name: "text", Required: true},
			{Name: "ttl", Validate: ValidateUint},
		},
	})

	register(&Schema{
		Type:                  TypeSRVRecord,
		RequiresConfiguration: true,
		RequiresView:          true,
		Fields: []FieldSpec{
			{Name: "fqdn", Required: true, Identity: true, Normalize: normFQDN, Validate: ValidateFQDN},
			{Name: "target", Required: true, Normalize: normFQDN, Validate: ValidateFQDN},
			{Name: "priority", Required: true, Validate: ValidateUint},
			{Name: "weight", Required: true, Validate: ValidateUint},
			{Name: "port", Required: true, Validate: ValidateUint},
			{Name: "ttl", Validate: ValidateUint},
		},
	})

	register(&Schema{
		Type:                  TypeExternalHostRecord,
		RequiresConfiguration: true,
		RequiresView:          true,
		Fields: []FieldSpec{
			{Name: "fqdn", Required: true, Identity: true, Normalize: normFQDN, Validate: ValidateFQDN},
		},
	})

	register(&Schema{
		Type:                  TypeGenericRecord,
		RequiresConfiguration: true,
		RequiresView:          true,
		Fields: []FieldSpec{
			{Name: "fqdn", Required: true, Identity: true, Normalize: normFQDN, Validate: ValidateFQDN},
			{Name: "record_type", Required: true, Identity: true, Normalize: normUpper},
			{Name: "data", Required: true},
			{Name: "ttl", Validate: ValidateUint},
		},
	})

	register(&Schema{
		Type: TypeLocation,
		Fields: []FieldSpec{
			{Name: "code", Required: true, Identity: true, Normalize: normUpper},
			{Name: "name"},
			{Name: "parent_code", Normalize: normUpper},
		},
	})

	register(&Schema{
		Type: TypeUDFDefinition,
		Fields: []FieldSpec{
			{Name: "object_class", Required: true, Identity: true},
			{Name: "field_name", Required: true, Identity: true},
			{Name: "display_name"},
			{Name: "field_type", Normalize: normUpper,
				Validate: ValidateEnum("TEXT", "INTEGER", "DATE", "EMAIL", "URL", "BOOLEAN")},
			{Name: "default_value"},
			{Name: "required", Normalize: normBool, Validate: ValidateBool},
		},
	})

	register(&Schema{
		Type: TypeUDLDefinition,
		Fields: []FieldSpec{
			{Name: "name", Required: true, Identity: true},
			{Name: "display_name"},
			{Name: "source_type", Required: true},
			{Name: "destination_type", Required: true},
		},
	})

	register(&Schema{
		Type: TypeUserDefinedLink,
		Fields: []FieldSpec{
			{Name: "link_name", Required: true, Identity: true},
			{Name: "source_path", Required: true, Identity: true},
			{Name: "destination_path", Required: true, Identity: true},
		},
	})

	register(&Schema{
		Type:                  TypeMACPool,
		RequiresConfiguration: true,
		Fields: []FieldSpec{
			{Name: "name", Required: true, Identity: true},
		},
	})

	register(&Schema{
		Type:                  TypeMACAddress,
		RequiresConfiguration: true,
		Fields: []FieldSpec{
			{Name: "mac_address", Required: true, Identity: true, Normalize: normMAC},
			{Name: "name"},
			{Name: "pool"},
		},
	})

	register(&Schema{
		Type: TypeTagGroup,
		Fields: []FieldSpec{
			{Name: "name", Required: true, Identity: true},
		},
	})

	register(&Schema{
		Type: TypeTag,
		Fields: []FieldSpec{
			{Name: "name", Required: true, Identity: true},
			{Name: "tag_group", Required: true, Identity: true},
			{Name: "parent_tag"},
		},
	})

	register(&Schema{
		Type: TypeResourceTag,
		Fields: []FieldSpec{
			{Name: "tag_path", Required: true, Identity: true},
			{Name: "resource_path", Required: true, Identity: true},
		},
	})

	register(&Schema{
		Type: TypeDeviceType,
		Fields: []FieldSpec{
			{Name: "name", Required: true, Identity: true},
		},
	})

	register(&Schema{
		Type: TypeDeviceSubtype,
		Fields: []FieldSpec{
			{Name: "name", Required: true, Identity: true},
			{Name: "device_type", Required: true, Identity: true},
		},
	})

	register(&Schema{
		Type:                  TypeDevice,
		RequiresConfiguration: true,
		Fields: []FieldSpec{
			{Name: "name", Required: true, Identity: true},
			{Name: "device_type"},
			{Name: "device_subtype"},
			{Name: "mac_addresses", List: true, Normalize: normMAC},
		},
	})

	register(&Schema{
		Type:                  TypeDeviceAddress,
		RequiresConfiguration: true,
		Fields: []FieldSpec{
			{Name: "device", Required: true, Identity: true},
			{Name: "address", Required: true, Identity: true, Validate: ValidateIP},
		},
	})

	register(&Schema{
		Type:                  TypeACL,
		RequiresConfiguration: true,
		Fields: []FieldSpec{
			{Name: "name", Required: true, Identity: true},
			{Name: "addresses", List: true, Validate: validateIPOrCIDR},
		},
	})

	register(&Schema{
		Type: TypeAccessRight,
		Fields: []FieldSpec{
			{Name: "principal", Required: true, Identity: true},
			{Name: "user_type", Normalize: normLower, Validate: ValidateEnum("user", "group")},
			{Name: "access_level", Required: true, Normalize: normUpper,
				Validate: ValidateEnum("HIDE", "VIEW", "ADD", "CHANGE", "FULL")},
			{Name: "resource_path", Required: true, Identity: true},
		},
	})
}
