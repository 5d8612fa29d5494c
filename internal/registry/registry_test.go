package registry

import "testing"

func TestKindsReturnsDeclarationOrder(t *testing.T) {
	reg := New()
	want := []string{"client", "employee", "service_type", "task", "finance_entry"}
	got := reg.Kinds()
	if len(got) != len(want) {
		t.Fatalf("expected %d kinds, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestResolveTrimsWhitespaceAndRejectsUnknownKinds(t *testing.T) {
	reg := New()
	if _, ok := reg.Resolve("  task  "); !ok {
		t.Fatalf("expected trimmed kind to resolve")
	}
	if _, ok := reg.Resolve("invoice"); ok {
		t.Fatalf("unknown kind must not resolve")
	}
	if _, ok := reg.Resolve(""); ok {
		t.Fatalf("empty kind must not resolve")
	}
}

func TestFieldMappingRoundTrips(t *testing.T) {
	reg := New()
	cfg, ok := reg.Resolve("task")
	if !ok {
		t.Fatalf("task kind must resolve")
	}

	column, ok := cfg.ColumnFor("clientId")
	if !ok || column != "client_id" {
		t.Fatalf("expected client_id column, got %q (ok=%v)", column, ok)
	}
	apiName, ok := cfg.APINameFor("client_id")
	if !ok || apiName != "clientId" {
		t.Fatalf("expected clientId field, got %q (ok=%v)", apiName, ok)
	}
	if _, ok := cfg.ColumnFor("unknownField"); ok {
		t.Fatalf("unknown field must not map to a column")
	}
}

func TestRequiredFields(t *testing.T) {
	reg := New()
	cfg, ok := reg.Resolve("finance_entry")
	if !ok {
		t.Fatalf("finance_entry kind must resolve")
	}
	required := cfg.RequiredFields()
	if len(required) != 2 || required[0] != "amount" || required[1] != "direction" {
		t.Fatalf("unexpected required fields: %v", required)
	}
}

func TestValidate(t *testing.T) {
	reg := New()

	cases := []struct {
		name    string
		kind    string
		payload map[string]any
		want    bool
	}{
		{"complete payload", "client", map[string]any{"name": "Acme"}, true},
		{"missing required", "client", map[string]any{"phone": "555"}, false},
		{"nil required", "client", map[string]any{"name": nil}, false},
		{"blank required string", "client", map[string]any{"name": "   "}, false},
		{"numeric required present", "finance_entry", map[string]any{"amount": 12.5, "direction": "income"}, true},
		{"unknown kind", "invoice", map[string]any{"name": "Acme"}, false},
	}
	for _, tc := range cases {
		if got := reg.Validate(tc.kind, tc.payload); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
