package scope

import "testing"

func TestCompileGlob(t *testing.T) {
	cases := []struct {
		pattern string
		input   string
		want    bool
	}{
		{"/ws/*.txt", "/ws/a.txt", true},
		{"/ws/*.txt", "/ws/sub/a.txt", false},
		{"/ws/**/*.txt", "/ws/sub/deep/a.txt", true},
		{"/ws/**", "/ws/anything/at/all", true},
		{"/ws/?.go", "/ws/a.go", true},
		{"/ws/?.go", "/ws/ab.go", false},
		{"/ws/?.go", "/ws//.go", false},
		// Literal metacharacters must not act as regex.
		{"/ws/a+b.txt", "/ws/a+b.txt", true},
		{"/ws/a+b.txt", "/ws/aab.txt", false},
		{"/ws/a.b", "/ws/axb", false},
		{"/ws/(x).go", "/ws/(x).go", true},
		// Anchored: no partial matches.
		{"*.txt", "dir/a.txt", false},
		{"*.txt", "a.txt", true},
	}
	for _, c := range cases {
		re, err := CompileGlob(c.pattern)
		if err != nil {
			t.Fatalf("compile %q: %v", c.pattern, err)
		}
		if got := re.MatchString(c.input); got != c.want {
			t.Errorf("pattern %q input %q: got %v, want %v", c.pattern, c.input, got, c.want)
		}
	}
}

func TestPathPatternPrefix(t *testing.T) {
	p := compilePathPattern("/ws/.env")
	if !p.match("/ws/.env") {
		t.Error("exact path should match")
	}
	if !p.match("/ws/.env/nested") {
		t.Error("children of a denied prefix should match")
	}
	if p.match("/ws/.environment") {
		t.Error("sibling with shared prefix must not match")
	}
}
