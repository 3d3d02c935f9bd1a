package cgroup

import (
	"os"
	"testing"
)

func TestParseKeyed(t *testing.T) {
	const events = "low 0\nhigh 0\nmax 3\noom 1\noom_kill 1\noom_group_kill 0\n"
	tests := []struct {
		key     string
		want    uint64
		wantErr bool
	}{
		{"oom_kill", 1, false},
		{"max", 3, false},
		{"low", 0, false},
		{"missing", 0, true},
	}
	for _, tt := range tests {
		got, err := parseKeyed([]byte(events), tt.key)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseKeyed(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseKeyed(%q) = %d, want %d", tt.key, got, tt.want)
		}
	}
}

func TestParseSelfCgroup(t *testing.T) {
	tests := []struct {
		content string
		want    string
		wantErr bool
	}{
		{"0::/user.slice/session-1.scope\n", "/user.slice/session-1.scope", false},
		{"12:memory:/docker/abc\n0::/\n", "/", false},
		{"12:memory:/docker/abc\n", "", true},
	}
	for _, tt := range tests {
		got, err := parseSelfCgroup([]byte(tt.content))
		if (err != nil) != tt.wantErr {
			t.Errorf("parseSelfCgroup(%q) error = %v", tt.content, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseSelfCgroup(%q) = %q, want %q", tt.content, got, tt.want)
		}
	}
}

func TestTypeString(t *testing.T) {
	for ty, want := range map[Type]string{TypeNone: "none", TypeV1: "v1", TypeV2: "v2"} {
		if ty.String() != want {
			t.Errorf("%d.String() = %q, want %q", ty, ty.String(), want)
		}
	}
}

func TestGroup_NewDestroy(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("requires root")
	}
	self, err := Self()
	if err != nil {
		t.Skip(err)
	}
	g, err := self.New("judgecore-test")
	if err != nil {
		t.Skip(err)
	}
	if ps, err := g.Processes(); err != nil || len(ps) != 0 {
		t.Errorf("Processes() = %v, %v", ps, err)
	}
	if err := g.Destroy(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(g.Path()); !os.IsNotExist(err) {
		t.Errorf("cgroup %s still exists", g.Path())
	}
}
