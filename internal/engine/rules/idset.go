package rules

import (
	"sort"

	"github.com/bytedance/sonic"
	"github.com/disgoorg/snowflake/v2"
)

// IDSet is a set of snowflake IDs that serializes as a sorted JSON list, so
// rule scope sets round-trip through snapshots in a stable form.
type IDSet map[snowflake.ID]struct{}

// NewIDSet builds a set from the given IDs.
func NewIDSet(ids ...snowflake.ID) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains reports set membership.
func (s IDSet) Contains(id snowflake.ID) bool {
	_, ok := s[id]
	return ok
}

// Slice returns the members sorted ascending.
func (s IDSet) Slice() []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Clone returns an independent copy of the set.
func (s IDSet) Clone() IDSet {
	c := make(IDSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// MarshalJSON encodes the set as a sorted list.
func (s IDSet) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(s.Slice())
}

// UnmarshalJSON decodes a list into the set.
func (s *IDSet) UnmarshalJSON(data []byte) error {
	var ids []snowflake.ID
	if err := sonic.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewIDSet(ids...)
	return nil
}
