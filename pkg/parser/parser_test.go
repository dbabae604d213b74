package parser

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/netgrove/bamsync/pkg/model"
)

const sampleInput = `row_id,action,object_type,configuration,view,cidr,name,fqdn,addresses
r1,create,ip4_block,Default,,10.0.0.0/8,corp,,
r2,create,ip4_network,Default,,10.0.1.0/24,app,,
r3,create,host_record,Default,Internal,,,web01.example.com,10.0.1.5
`

func TestParseBasic(t *testing.T) {
	result, err := Parse(strings.NewReader(sampleInput), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(result.Rows))
	}
	if result.Rows[0].ObjectType != model.TypeIP4Block {
		t.Errorf("unexpected object type %s", result.Rows[0].ObjectType)
	}
	if result.Rows[2].View != "Internal" {
		t.Errorf("expected view carried in envelope, got %q", result.Rows[2].View)
	}
	if result.Rows[2].Has("cidr") {
		t.Error("empty cells should not produce fields")
	}
}

func TestParseBOMAndWhitespace(t *testing.T) {
	input := "\xEF\xBB\xBF row_id , action , object_type , configuration , view , cidr \n r1 , create , ip4_block , Default , , 10.0.0.0/8 \n"
	result, err := Parse(strings.NewReader(input), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d (warnings %v errors %v)", len(result.Rows), result.Warnings, result.Errors)
	}
	if result.Rows[0].Get("cidr") != "10.0.0.0/8" {
		t.Errorf("expected trimmed cidr, got %q", result.Rows[0].Get("cidr"))
	}
}

func TestParseComments(t *testing.T) {
	input := "# exported by bamsync\n# bamsync-schema: v2\n" + sampleInput
	result, err := Parse(strings.NewReader(input), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Rows) != 3 {
		t.Errorf("expected comments ignored, got %d rows", len(result.Rows))
	}
	if len(result.Warnings) != 0 {
		t.Errorf("expected no warnings for supported schema version, got %v", result.Warnings)
	}
}

func TestParseUnknownSchemaVersion(t *testing.T) {
	input := "# bamsync-schema: v9\n" + sampleInput
	result, err := Parse(strings.NewReader(input), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("expected exactly one schema version warning, got %v", result.Warnings)
	}
	if len(result.Rows) != 3 {
		t.Errorf("expected rows parsed despite version warning, got %d", len(result.Rows))
	}
}

func TestParseHeaderValidation(t *testing.T) {
	t.Run("first column must be row_id", func(t *testing.T) {
		_, err := Parse(strings.NewReader("id,action\n1,create\n"), Options{})
		if err == nil {
			t.Error("expected error for bad header")
		}
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := Parse(strings.NewReader(""), Options{})
		if err == nil {
			t.Error("expected error for empty input")
		}
	})

	t.Run("duplicate column", func(t *testing.T) {
		_, err := Parse(strings.NewReader("row_id,name,name\n"), Options{})
		if err == nil {
			t.Error("expected error for duplicate column")
		}
	})
}

func TestParseCollectsErrors(t *testing.T) {
	input := `row_id,action,object_type,configuration,cidr
r1,create,ip4_network,Default,10.0.1.0/24
r2,create,ip4_network,Default,not-a-cidr
r3,create,ip4_network,Default,192.168.0.0/24
r3,create,ip4_network,Default,192.168.1.0/24
`
	result, err := Parse(strings.NewReader(input), Options{})
	if err != nil {
		t.Fatalf("unexpected error in lenient mode: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Errorf("expected 2 valid rows, got %d", len(result.Rows))
	}
	if len(result.Errors) != 2 {
		t.Errorf("expected 2 collected errors (bad cidr, duplicate row_id), got %v", result.Errors)
	}
}

func TestParseStrictMode(t *testing.T) {
	input := `row_id,action,object_type,configuration,cidr
r1,create,ip4_network,Default,not-a-cidr
`
	result, err := Parse(strings.NewReader(input), Options{Strict: true})
	if !errors.Is(err, ErrStrictValidation) {
		t.Fatalf("expected ErrStrictValidation, got %v", err)
	}
	if len(result.Errors) != 1 {
		t.Errorf("expected collected error, got %v", result.Errors)
	}
}

func TestParseUnknownTypeLenient(t *testing.T) {
	input := `row_id,action,object_type,configuration,name
r1,create,flux_capacitor,Default,x
r2,create,tag_group,,ops
`
	result, err := Parse(strings.NewReader(input), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Rows) != 1 {
		t.Errorf("expected unknown type skipped, got %d rows", len(result.Rows))
	}
	if len(result.Warnings) == 0 {
		t.Error("expected warning for unknown object type")
	}
}

func TestWriteRowsRoundTrip(t *testing.T) {
	result, err := Parse(strings.NewReader(sampleInput), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteRows(&buf, result.Rows, []string{"bamsync-schema: v2"}); err != nil {
		t.Fatalf("WriteRows failed: %v", err)
	}

	reparsed, err := Parse(&buf, Options{Strict: true})
	if err != nil {
		t.Fatalf("reparse failed: %v\n%s", err, buf.String())
	}
	if len(reparsed.Rows) != len(result.Rows) {
		t.Errorf("round trip lost rows: %d != %d", len(reparsed.Rows), len(result.Rows))
	}
}

func TestSanitize(t *testing.T) {
	input := "# comment stays\nrow_id , action , object_type\n r1 ,create, tag_group \n"
	var out bytes.Buffer
	if err := Sanitize(strings.NewReader(input), &out); err != nil {
		t.Fatalf("Sanitize failed: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "# comment stays") {
		t.Errorf("comment dropped: %q", got)
	}
	if !strings.Contains(got, "row_id,action,object_type") {
		t.Errorf("header not trimmed: %q", got)
	}
	if !strings.Contains(got, "r1,create,tag_group") {
		t.Errorf("cells not trimmed: %q", got)
	}
}
