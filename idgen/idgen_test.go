package idgen

import (
	"strings"
	"testing"
)

func TestShort(t *testing.T) {
	id := Short(16)()
	if len(id) != 16 {
		t.Fatalf("length = %d", len(id))
	}
	for _, c := range id {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')) {
			t.Fatalf("unexpected character %q in %q", c, id)
		}
	}
}

func TestRunID(t *testing.T) {
	seen := make(map[string]struct{}, 500)
	prev := ""
	for i := 0; i < 500; i++ {
		id := RunID()
		if !strings.HasPrefix(id, "run_") {
			t.Fatalf("id %q lacks prefix", id)
		}
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate %q", id)
		}
		seen[id] = struct{}{}
		u, err := Parse("run_", id)
		if err != nil {
			t.Fatal(err)
		}
		if u.Version() != 7 {
			t.Fatalf("version = %d", u.Version())
		}
		if prev != "" && id[:len("run_")+8] < prev[:len("run_")+8] {
			t.Fatalf("ids not time ordered: %q after %q", id, prev)
		}
		prev = id
	}
}

func TestParse_Errors(t *testing.T) {
	if _, err := Parse("run_", "req_abc"); err == nil {
		t.Fatal("wrong prefix accepted")
	}
	if _, err := Parse("run_", "run_not-a-uuid"); err == nil {
		t.Fatal("bad uuid accepted")
	}
}

func TestRequestID(t *testing.T) {
	id := RequestID()
	if !strings.HasPrefix(id, "req_") || len(id) != len("req_")+12 {
		t.Fatalf("id = %q", id)
	}
}
