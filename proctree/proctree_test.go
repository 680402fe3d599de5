package proctree

import "testing"

func TestSocketInode(t *testing.T) {
	cases := []struct {
		target string
		want   uint32
		ok     bool
	}{
		{"socket:[12345]", 12345, true},
		{"/tmp/sock", 0, false},
		{"pipe:[99]", 0, false},
		{"socket:[]", 0, false},
	}
	for _, c := range cases {
		got, ok := socketInode(c.target)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("socketInode(%q) = (%d, %v), want (%d, %v)", c.target, got, ok, c.want, c.ok)
		}
	}
}
