package cluster

import "testing"

func TestNewIdentity(t *testing.T) {
	tests := []struct {
		name, leader string
		want         Role
	}{
		{"kvstore-0", "0", RoleLeader},
		{"kvstore-1", "0", RoleFollower},
		{"kvstore-12", "12", RoleLeader},
		{"kvstore-0", "kvstore-0", RoleLeader},
		{"kvstore-1", "kvstore-0", RoleFollower},
		{"standalone", "0", RoleFollower},
		{"kvstore-0", "", RoleFollower},
		{"0", "0", RoleLeader},
		{"1", "1", RoleLeader},
		{"1", "0", RoleFollower},
	}

	for _, tt := range tests {
		id := NewIdentity(tt.name, tt.leader)
		if id.Role() != tt.want {
			t.Errorf("NewIdentity(%q, %q): expected %s, got %s", tt.name, tt.leader, tt.want, id.Role())
		}
		if id.IsLeader() != (tt.want == RoleLeader) {
			t.Errorf("NewIdentity(%q, %q): IsLeader inconsistent with role", tt.name, tt.leader)
		}
		if id.Name() != tt.name {
			t.Errorf("Expected name %q, got %q", tt.name, id.Name())
		}
	}
}

func TestOrdinal(t *testing.T) {
	if n, ok := Ordinal("kvstore-3"); !ok || n != 3 {
		t.Errorf("Expected 3, got %d %v", n, ok)
	}
	for _, name := range []string{"kvstore", "kvstore-", "kvstore-x", "kvstore-1a"} {
		if _, ok := Ordinal(name); ok {
			t.Errorf("Expected no ordinal for %q", name)
		}
	}
}
