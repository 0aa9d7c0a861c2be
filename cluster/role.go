package cluster

import (
	"strconv"
	"strings"
)

type Role string

const (
	RoleLeader   Role = "leader"
	RoleFollower Role = "follower"
)

// Identity is the static role of a node. There is no election: the role is a
// pure function of configuration, fixed at construction.
type Identity struct {
	name           string
	leaderIdentity string
	role           Role
}

// NewIdentity compares the node name with the configured leader identity.
// When the name differs, a numeric leader identity is matched against the
// ordinal suffix of the name, so "0" selects the first pod of a StatefulSet.
func NewIdentity(name, leaderIdentity string) Identity {
	id := Identity{name: name, leaderIdentity: leaderIdentity, role: RoleFollower}

	if leaderIdentity == "" {
		return id
	}
	if name == leaderIdentity {
		id.role = RoleLeader
		return id
	}
	if want, err := strconv.Atoi(leaderIdentity); err == nil {
		if got, ok := Ordinal(name); ok && got == want {
			id.role = RoleLeader
		}
	}
	return id
}

func (i Identity) Name() string   { return i.name }
func (i Identity) Role() Role     { return i.role }
func (i Identity) IsLeader() bool { return i.role == RoleLeader }

// Ordinal parses the trailing "-<n>" of a StatefulSet pod name.
func Ordinal(name string) (int, bool) {
	idx := strings.LastIndex(name, "-")
	if idx < 0 || idx == len(name)-1 {
		return 0, false
	}
	n, err := strconv.Atoi(name[idx+1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
