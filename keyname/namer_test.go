package keyname

import "testing"

func TestName(t *testing.T) {
	n := New("app")
	if got := n.Name("u:1"); got != "app:u:1" {
		t.Fatalf("Name() = %q, want %q", got, "app:u:1")
	}
}

func TestClearAllSentinel(t *testing.T) {
	n := New("app")
	want := "app:*FLUSHDB*"
	if got := n.ClearAllSentinel(); got != want {
		t.Fatalf("ClearAllSentinel() = %q, want %q", got, want)
	}
	if !n.IsClearAllSentinel(want) {
		t.Fatal("IsClearAllSentinel() should report true for its own sentinel")
	}
	if n.IsClearAllSentinel("app:u:1") {
		t.Fatal("IsClearAllSentinel() should report false for an ordinary key")
	}
}

func TestPattern(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"a:", "app:*a:*"},
		{"*a:", "app:*a:*"},
		{"a:*", "app:*a:*"},
		{"*a:*", "app:*a:*"},
	}
	n := New("app")
	for _, c := range cases {
		if got := n.Pattern(c.in); got != c.want {
			t.Errorf("Pattern(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestInvalidationChannel(t *testing.T) {
	n := New("app")
	if got := n.InvalidationChannel(); got != "app:invalidate" {
		t.Fatalf("InvalidationChannel() = %q, want %q", got, "app:invalidate")
	}
}
