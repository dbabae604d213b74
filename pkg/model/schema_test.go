package model

import (
	"strings"
	"testing"
)

func testRow(t ObjectType, action Action, fields map[string]string) *Row {
	return &Row{
		RowID:         "r1",
		Action:        action,
		ObjectType:    t,
		Configuration: "Default",
		View:          "Internal",
		Fields:        fields,
	}
}

func TestValidateRowNetwork(t *testing.T) {
	t.Run("valid create", func(t *testing.T) {
		row := testRow(TypeIP4Network, ActionCreate, map[string]string{
			"cidr": "10.0.1.0/24",
			"name": "app-tier",
		})
		if errs := ValidateRow(row); len(errs) != 0 {
			t.Errorf("expected no errors, got %v", errs)
		}
	})

	t.Run("missing identity", func(t *testing.T) {
		row := testRow(TypeIP4Network, ActionCreate, map[string]string{"name": "x"})
		errs := ValidateRow(row)
		if len(errs) != 1 || errs[0].Field != "cidr" {
			t.Errorf("expected single cidr error, got %v", errs)
		}
	})

	t.Run("delete only needs identity", func(t *testing.T) {
		row := testRow(TypeIP4Network, ActionDelete, map[string]string{"cidr": "10.0.1.0/24"})
		if errs := ValidateRow(row); len(errs) != 0 {
			t.Errorf("expected no errors for delete, got %v", errs)
		}
	})

	t.Run("bad cidr collected with row id", func(t *testing.T) {
		row := testRow(TypeIP4Network, ActionCreate, map[string]string{"cidr": "10.0.1.5/24"})
		errs := ValidateRow(row)
		if len(errs) != 1 {
			t.Fatalf("expected one error, got %v", errs)
		}
		if errs[0].RowID != "r1" {
			t.Errorf("expected error to carry row id, got %+v", errs[0])
		}
	})
}

func TestValidateRowNormalization(t *testing.T) {
	t.Run("mac normalized", func(t *testing.T) {
		row := testRow(TypeIP4Address, ActionCreate, map[string]string{
			"address":     "10.0.1.5",
			"mac_address": "aa-bb-cc-dd-ee-ff",
		})
		if errs := ValidateRow(row); len(errs) != 0 {
			t.Fatalf("unexpected errors: %v", errs)
		}
		if row.Fields["mac_address"] != "AA:BB:CC:DD:EE:FF" {
			t.Errorf("mac not normalized: %q", row.Fields["mac_address"])
		}
	})

	t.Run("fqdn trailing dot stripped", func(t *testing.T) {
		row := testRow(TypeHostRecord, ActionCreate, map[string]string{
			"fqdn":      "Web01.Example.COM.",
			"addresses": "10.0.1.5|10.0.1.6",
		})
		if errs := ValidateRow(row); len(errs) != 0 {
			t.Fatalf("unexpected errors: %v", errs)
		}
		if row.Fields["fqdn"] != "web01.example.com" {
			t.Errorf("fqdn not normalized: %q", row.Fields["fqdn"])
		}
	})

	t.Run("access level uppercased user type lowercased", func(t *testing.T) {
		row := testRow(TypeAccessRight, ActionCreate, map[string]string{
			"principal":     "ops-team",
			"user_type":     "GROUP",
			"access_level":  "change",
			"resource_path": "Default",
		})
		if errs := ValidateRow(row); len(errs) != 0 {
			t.Fatalf("unexpected errors: %v", errs)
		}
		if row.Fields["access_level"] != "CHANGE" {
			t.Errorf("access level not uppercased: %q", row.Fields["access_level"])
		}
		if row.Fields["user_type"] != "group" {
			t.Errorf("user type not lowercased: %q", row.Fields["user_type"])
		}
	})

	t.Run("list field validated per element", func(t *testing.T) {
		row := testRow(TypeHostRecord, ActionCreate, map[string]string{
			"fqdn":      "web01.example.com",
			"addresses": "10.0.1.5|not-an-ip",
		})
		errs := ValidateRow(row)
		if len(errs) != 1 || errs[0].Field != "addresses" {
			t.Errorf("expected addresses error, got %v", errs)
		}
	})
}

func TestValidateRowEnvelope(t *testing.T) {
	t.Run("unknown object type", func(t *testing.T) {
		row := testRow("mystery_kind", ActionCreate, nil)
		errs := ValidateRow(row)
		if len(errs) != 1 || errs[0].Field != "object_type" {
			t.Errorf("expected object_type error, got %v", errs)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		row := testRow(TypeIP4Block, "upsert", map[string]string{"cidr": "10.0.0.0/8"})
		errs := ValidateRow(row)
		if len(errs) != 1 || errs[0].Field != "action" {
			t.Errorf("expected action error, got %v", errs)
		}
	})

	t.Run("missing configuration", func(t *testing.T) {
		row := testRow(TypeIP4Block, ActionCreate, map[string]string{"cidr": "10.0.0.0/8"})
		row.Configuration = ""
		errs := ValidateRow(row)
		if len(errs) != 1 || errs[0].Field != "configuration" {
			t.Errorf("expected configuration error, got %v", errs)
		}
	})

	t.Run("dns kind requires view", func(t *testing.T) {
		row := testRow(TypeDNSZone, ActionCreate, map[string]string{"fqdn": "example.com"})
		row.View = ""
		errs := ValidateRow(row)
		if len(errs) != 1 || errs[0].Field != "view" {
			t.Errorf("expected view error, got %v", errs)
		}
	})
}

func TestRowList(t *testing.T) {
	row := testRow(TypeHostRecord, ActionCreate, map[string]string{
		"addresses": "10.0.1.5| 10.0.1.6 ||10.0.1.7",
	})
	got := row.List("addresses")
	want := []string{"10.0.1.5", "10.0.1.6", "10.0.1.7"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("List = %v, want %v", got, want)
	}
	if row.List("missing") != nil {
		t.Error("expected nil for absent list field")
	}
}

func TestActionInverse(t *testing.T) {
	if ActionCreate.Inverse() != ActionDelete {
		t.Error("create should invert to delete")
	}
	if ActionDelete.Inverse() != ActionCreate {
		t.Error("delete should invert to create")
	}
	if ActionUpdate.Inverse() != ActionUpdate {
		t.Error("update should invert to update")
	}
}

func TestProtectedTypes(t *testing.T) {
	for _, protected := range []ObjectType{TypeConfiguration, TypeView, TypeIP4Block, TypeIP4Network, TypeDNSZone} {
		if !protected.Protected() {
			t.Errorf("%s should be protected", protected)
		}
	}
	if TypeHostRecord.Protected() {
		t.Error("host_record should not be protected")
	}
}
