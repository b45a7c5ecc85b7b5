package group

import (
	"strconv"
	"strings"

	"chatserver/internal/store/fsutil"
)

type member struct {
	groupID  int64
	username string
}

func (s *Store) findGroupLocked(groupID int64) (Group, bool, error) {
	lines, err := fsutil.ReadLines(s.groupsPath)
	if err != nil {
		return Group{}, false, err
	}
	for _, line := range lines {
		g, ok := parseGroup(line)
		if !ok {
			continue
		}
		if g.ID == groupID {
			return g, true, nil
		}
	}
	return Group{}, false, nil
}

func (s *Store) loadMembersLocked() ([]member, error) {
	lines, err := fsutil.ReadLines(s.membersPath)
	if err != nil {
		return nil, err
	}
	members := make([]member, 0, len(lines))
	for _, line := range lines {
		m, ok := parseMember(line)
		if !ok {
			continue
		}
		members = append(members, m)
	}
	return members, nil
}

func (s *Store) saveMembersLocked(members []member) error {
	lines := make([]string, 0, len(members))
	for _, m := range members {
		lines = append(lines, renderMember(m.groupID, m.username))
	}
	return fsutil.WriteLines(s.membersPath, lines)
}

func parseGroup(line string) (Group, bool) {
	f := strings.Split(line, "|")
	if len(f) != 4 {
		return Group{}, false
	}
	id, err := strconv.ParseInt(f[0], 10, 64)
	if err != nil {
		return Group{}, false
	}
	ts, err := strconv.ParseInt(f[3], 10, 64)
	if err != nil {
		return Group{}, false
	}
	return Group{ID: id, Name: f[1], Owner: f[2], CreatedAt: ts}, true
}

func renderGroup(g Group) string {
	return strings.Join([]string{
		strconv.FormatInt(g.ID, 10), g.Name, g.Owner, strconv.FormatInt(g.CreatedAt, 10),
	}, "|")
}

func parseMember(line string) (member, bool) {
	f := strings.Split(line, "|")
	if len(f) != 2 {
		return member{}, false
	}
	id, err := strconv.ParseInt(f[0], 10, 64)
	if err != nil {
		return member{}, false
	}
	return member{groupID: id, username: f[1]}, true
}

func renderMember(groupID int64, username string) string {
	return strconv.FormatInt(groupID, 10) + "|" + username
}
