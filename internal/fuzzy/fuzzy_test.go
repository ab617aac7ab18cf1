package fuzzy

import "testing"

func TestDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{a: "", b: "", want: 0},
		{a: "", b: "abc", want: 3},
		{a: "abc", b: "", want: 3},
		{a: "alias", b: "alias", want: 0},
		{a: "alise", b: "alias", want: 2},
		{a: "kitten", b: "sitting", want: 3},
		{a: "bob", b: "bobb", want: 1},
		{a: "ali", b: "alia", want: 1},
		{a: "한국", b: "한굮", want: 1},
		{a: "ab", b: "ba", want: 2},
		{a: "alice", b: "bob", want: 5},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			t.Parallel()
			if got := Distance(tt.a, tt.b); got != tt.want {
				t.Errorf("Distance(%q, %q): got %d, want %d", tt.a, tt.b, got, tt.want)
			}
			if got := Distance(tt.b, tt.a); got != tt.want {
				t.Errorf("Distance(%q, %q): got %d, want %d (symmetry)", tt.b, tt.a, got, tt.want)
			}
		})
	}
}

func TestClosestAlias(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		query   string
		aliases []string
		want    string
		found   bool
	}{
		{name: "near miss", query: "alise", aliases: []string{"alias", "bob"}, want: "alias", found: true},
		{name: "too far", query: "xyz123", aliases: []string{"alias", "bob"}, found: false},
		{name: "case insensitive", query: "BOBB", aliases: []string{"alias", "Bob"}, want: "Bob", found: true},
		{name: "exact match", query: "carol", aliases: []string{"carl", "carol"}, want: "carol", found: true},
		{name: "first minimum wins", query: "ab", aliases: []string{"aa", "bb", "ac"}, want: "aa", found: true},
		{name: "empty store", query: "alice", aliases: nil, found: false},
		{name: "distance two accepted", query: "alce", aliases: []string{"alice2"}, want: "alice2", found: true},
		{name: "distance three rejected", query: "al", aliases: []string{"alice"}, found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ClosestAlias(tt.query, tt.aliases)
			if ok != tt.found {
				t.Fatalf("ClosestAlias(%q) found: got %v, want %v", tt.query, ok, tt.found)
			}
			if got != tt.want {
				t.Errorf("ClosestAlias(%q): got %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}
