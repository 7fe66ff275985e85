package buildinfo

import (
	"strings"
	"testing"
)

func TestGetIncludesRuntime(t *testing.T) {
	info := Get()
	if info.Version == "" || info.Commit == "" {
		t.Fatalf("expected defaults for version/commit, got %+v", info)
	}
	if !strings.HasPrefix(info.GoVersion, "go") {
		t.Fatalf("unexpected go version: %q", info.GoVersion)
	}
}

func TestInfoID(t *testing.T) {
	i := Info{Version: "1.2.3", Commit: "abc1234"}
	if got := i.ID(); got != "1.2.3+abc1234" {
		t.Fatalf("ID() = %q", got)
	}
}

func TestParseSemVer(t *testing.T) {
	cases := []struct {
		in      string
		want    SemVer
		wantErr bool
	}{
		{in: "1.2.3", want: SemVer{Major: 1, Minor: 2, Patch: 3}},
		{in: "v0.2.6", want: SemVer{Major: 0, Minor: 2, Patch: 6}},
		{in: "1.0.0-beta.1", want: SemVer{Major: 1, Minor: 0, Patch: 0, Prerelease: "beta.1"}},
		{in: "  v3.0.1 ", want: SemVer{Major: 3, Minor: 0, Patch: 1}},
		{in: "1.2", wantErr: true},
		{in: "not-a-version", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, c := range cases {
		got, err := ParseSemVer(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseSemVer(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSemVer(%q): %v", c.in, err)
			continue
		}
		if got.Major != c.want.Major || got.Minor != c.want.Minor || got.Patch != c.want.Patch || got.Prerelease != c.want.Prerelease {
			t.Errorf("ParseSemVer(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestSemVerCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.1", "1.0.0", 1},
		{"1.0.0", "1.1.0", -1},
		{"2.0.0", "1.9.9", 1},
		{"1.0.0", "1.0.0-alpha", 1},
		{"1.0.0-alpha", "1.0.0-beta", -1},
	}
	for _, c := range cases {
		av, err := ParseSemVer(c.a)
		if err != nil {
			t.Fatalf("parse %q: %v", c.a, err)
		}
		bv, err := ParseSemVer(c.b)
		if err != nil {
			t.Fatalf("parse %q: %v", c.b, err)
		}
		if got := av.Compare(bv); got != c.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestDescribeBuilds(t *testing.T) {
	if got := DescribeBuilds("1.2.0+abc", "1.2.0+abc"); !strings.Contains(got, "same build") {
		t.Errorf("same builds: %q", got)
	}
	if got := DescribeBuilds("1.3.0+abc", "1.2.0+def"); !strings.Contains(got, "older than") {
		t.Errorf("older recorded: %q", got)
	}
	if got := DescribeBuilds("1.2.0+abc", "1.3.0+def"); !strings.Contains(got, "newer than") {
		t.Errorf("newer recorded: %q", got)
	}
	if got := DescribeBuilds("1.2.0+abc", "1.2.0+def"); !strings.Contains(got, "same version") {
		t.Errorf("same version different commit: %q", got)
	}
	if got := DescribeBuilds("nightly+abc", "weird+def"); !strings.Contains(got, "differs from") {
		t.Errorf("unparseable versions: %q", got)
	}
}
