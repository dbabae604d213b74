package bam

import (
	"strings"
	"testing"
)

func TestBuildFilter(t *testing.T) {
	t.Run("plain equality", func(t *testing.T) {
		got := BuildFilter(map[string]any{"name": "corp"})
		if got != "name:'corp'" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("operator suffixes", func(t *testing.T) {
		got := BuildFilter(map[string]any{"name__like": "web"})
		if got != "name:like('web')" {
			t.Errorf("got %q", got)
		}
		got = BuildFilter(map[string]any{"range__contains": "10.0.1.5"})
		if got != "range:contains('10.0.1.5')" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("terms joined by and, sorted", func(t *testing.T) {
		got := BuildFilter(map[string]any{"type": "HostRecord", "absoluteName": "a.example.com"})
		want := "absoluteName:'a.example.com' and type:'HostRecord'"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("single quotes escaped", func(t *testing.T) {
		got := BuildFilter(map[string]any{"name": "o'brien"})
		if got != `name:'o\'brien'` {
			t.Errorf("got %q", got)
		}
		// No unescaped quote may remain between the wrapping quotes.
		inner := strings.TrimSuffix(strings.TrimPrefix(got, "name:'"), "'")
		for i := 0; i < len(inner); i++ {
			if inner[i] == '\'' && (i == 0 || inner[i-1] != '\\') {
				t.Errorf("unescaped quote in %q", got)
			}
		}
	})

	t.Run("ipv6 double quoted", func(t *testing.T) {
		got := BuildFilter(map[string]any{"address": "2001:db8::1"})
		if got != `address:"2001:db8::1"` {
			t.Errorf("got %q", got)
		}
		got = BuildFilter(map[string]any{"range": "2001:db8::/32"})
		if got != `range:"2001:db8::/32"` {
			t.Errorf("got %q", got)
		}
	})

	t.Run("numerics and booleans bare", func(t *testing.T) {
		got := BuildFilter(map[string]any{"id__gt": 100, "deployable": true})
		want := "deployable:true and id:gt(100)"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("unknown suffix stays in field name", func(t *testing.T) {
		got := BuildFilter(map[string]any{"custom__field": "v"})
		if got != "custom__field:'v'" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("empty map", func(t *testing.T) {
		if got := BuildFilter(nil); got != "" {
			t.Errorf("got %q", got)
		}
	})
}
