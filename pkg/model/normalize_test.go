package model

import "testing"

func TestNormalizeMAC(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"aa:bb:cc:dd:ee:ff", "AA:BB:CC:DD:EE:FF", false},
		{"aa-bb-cc-dd-ee-ff", "AA:BB:CC:DD:EE:FF", false},
		{"aabb.ccdd.eeff", "AA:BB:CC:DD:EE:FF", false},
		{"aabbccddeeff", "AA:BB:CC:DD:EE:FF", false},
		{"aa:bb:cc", "", true},
		{"gg:bb:cc:dd:ee:ff", "", true},
		{"", "", true},
	}

	for _, tc := range cases {
		got, err := NormalizeMAC(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("NormalizeMAC(%q): expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeMAC(%q): unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizeMAC(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeFQDN(t *testing.T) {
	if got := NormalizeFQDN("WWW.Example.COM."); got != "www.example.com" {
		t.Errorf("expected trailing dot stripped and lowercased, got %q", got)
	}
}

func TestValidateCIDR(t *testing.T) {
	if err := ValidateCIDR("10.0.0.0/8"); err != nil {
		t.Errorf("valid CIDR rejected: %v", err)
	}
	if err := ValidateCIDR("2001:db8::/32"); err != nil {
		t.Errorf("valid IPv6 CIDR rejected: %v", err)
	}
	if err := ValidateCIDR("10.0.0.1/8"); err == nil {
		t.Error("expected error for non-canonical network address")
	}
	if err := ValidateCIDR("not-a-cidr"); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestValidateOptionCode(t *testing.T) {
	for _, ok := range []string{"1", "66", "254"} {
		if err := ValidateOptionCode(ok); err != nil {
			t.Errorf("code %s rejected: %v", ok, err)
		}
	}
	for _, bad := range []string{"0", "255", "-3", "abc", ""} {
		if err := ValidateOptionCode(bad); err == nil {
			t.Errorf("code %q accepted", bad)
		}
	}
}

func TestValidateServerScope(t *testing.T) {
	for _, ok := range ServerScopes {
		if err := ValidateServerScope(ok); err != nil {
			t.Errorf("scope %s rejected: %v", ok, err)
		}
	}
	if err := ValidateServerScope("global"); err == nil {
		t.Error("expected unknown scope to be rejected")
	}
}

func TestPrefixContainment(t *testing.T) {
	if !PrefixContains("10.0.0.0/8", "10.0.1.0/24") {
		t.Error("expected 10.0.0.0/8 to contain 10.0.1.0/24")
	}
	if PrefixContains("10.0.1.0/24", "10.0.0.0/8") {
		t.Error("expected /24 not to contain /8")
	}
	if PrefixContains("10.0.0.0/8", "192.168.0.0/24") {
		t.Error("expected disjoint networks to fail containment")
	}
	if !PrefixContainsAddr("10.0.1.0/24", "10.0.1.5") {
		t.Error("expected network to contain its address")
	}
	if PrefixContainsAddr("10.0.1.0/24", "10.0.2.5") {
		t.Error("expected address outside network to fail")
	}
}
