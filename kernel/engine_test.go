package kernel

import "testing"

func TestSplitBaseAndArgs(t *testing.T) {
	cases := []struct {
		path     string
		wantBase string
		wantArgs []string
	}{
		{"/", "/", nil},
		{"/widgets", "/widgets", nil},
		{"/widgets/42", "/widgets", []string{"42"}},
		{"/widgets/42/tags", "/widgets", []string{"42", "tags"}},
	}
	for _, tc := range cases {
		base, args := splitBaseAndArgs(tc.path)
		if base != tc.wantBase {
			t.Errorf("splitBaseAndArgs(%q) base = %q, want %q", tc.path, base, tc.wantBase)
		}
		if len(args) != len(tc.wantArgs) {
			t.Errorf("splitBaseAndArgs(%q) args = %v, want %v", tc.path, args, tc.wantArgs)
			continue
		}
		for i := range args {
			if args[i] != tc.wantArgs[i] {
				t.Errorf("splitBaseAndArgs(%q) args[%d] = %q, want %q", tc.path, i, args[i], tc.wantArgs[i])
			}
		}
	}
}

func TestCheckMultiValue(t *testing.T) {
	if err := checkMultiValue("name", nil); err != nil {
		t.Fatalf("no values should not error: %v", err)
	}
	if err := checkMultiValue("name", []string{"a"}); err != nil {
		t.Fatalf("one value should not error: %v", err)
	}
	if err := checkMultiValue("name", []string{"a", "b"}); err == nil {
		t.Fatal("two values for one field should error")
	}
}

func TestFirstValue(t *testing.T) {
	if v := firstValue(nil); v != "" {
		t.Fatalf("firstValue(nil) = %q, want empty", v)
	}
	if v := firstValue([]string{"a", "b"}); v != "a" {
		t.Fatalf("firstValue = %q, want a", v)
	}
}
