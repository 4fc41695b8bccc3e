// Package grouping reconstructs purchase groups from booked slots. Slots of
// the same booking that follow each other without a gap form one group.
package grouping

import (
	"fmt"
	"sort"
	"time"

	"cablepark/internal/models"
)

type Position uint8

const (
	None Position = iota
	First
	Middle
	Last
)

func (p Position) String() string {
	switch p {
	case First:
		return "first"
	case Middle:
		return "middle"
	case Last:
		return "last"
	default:
		return "none"
	}
}

func (p Position) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Position) UnmarshalText(text []byte) error {
	switch string(text) {
	case "first":
		*p = First
	case "middle":
		*p = Middle
	case "last":
		*p = Last
	case "none", "":
		*p = None
	default:
		return fmt.Errorf("unknown group position %q", text)
	}
	return nil
}

// Group is one connected run of slots under a single booking reference.
type Group struct {
	Reference string        `json:"reference"`
	Slots     []models.Slot `json:"slots"`
}

type Summary struct {
	Reference string    `json:"reference"`
	Count     int       `json:"count"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

func (g Group) Summary() Summary {
	s := Summary{Reference: g.Reference, Count: len(g.Slots)}
	if len(g.Slots) > 0 {
		s.Start = g.Slots[0].StartTime
		s.End = g.Slots[len(g.Slots)-1].EndTime
	}
	return s
}

// Index answers position and component queries for one set of slots.
type Index struct {
	groups      []Group
	componentOf map[int64]int
	position    map[int64]Position
	byReference map[string][]int
}

// Build links slots sharing a booking reference whose starts are exactly one
// slot length apart and labels every member of each component.
func Build(slots []models.Slot) *Index {
	idx := &Index{
		componentOf: make(map[int64]int),
		position:    make(map[int64]Position),
		byReference: make(map[string][]int),
	}

	nodes := make(map[int64]models.Slot)
	byRefStart := make(map[string]map[int64]int64)
	for _, s := range slots {
		if s.BookingReference == "" || s.ID == 0 {
			continue
		}
		if _, dup := nodes[s.ID]; dup {
			continue
		}
		nodes[s.ID] = s
		starts, ok := byRefStart[s.BookingReference]
		if !ok {
			starts = make(map[int64]int64)
			byRefStart[s.BookingReference] = starts
		}
		starts[s.StartTime.Unix()] = s.ID
	}

	step := int64(models.SlotDuration / time.Second)
	neighbours := func(s models.Slot) []int64 {
		starts := byRefStart[s.BookingReference]
		var out []int64
		for _, at := range []int64{s.StartTime.Unix() - step, s.StartTime.Unix() + step} {
			if id, ok := starts[at]; ok && id != s.ID {
				out = append(out, id)
			}
		}
		return out
	}

	ids := make([]int64, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := nodes[ids[i]], nodes[ids[j]]
		if a.StartTime.Equal(b.StartTime) {
			return a.ID < b.ID
		}
		return a.StartTime.Before(b.StartTime)
	})

	visited := make(map[int64]bool, len(nodes))
	for _, root := range ids {
		if visited[root] {
			continue
		}
		var members []models.Slot
		stack := []int64{root}
		visited[root] = true
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			members = append(members, nodes[id])
			for _, next := range neighbours(nodes[id]) {
				if !visited[next] {
					visited[next] = true
					stack = append(stack, next)
				}
			}
		}
		sort.Slice(members, func(i, j int) bool { return members[i].StartTime.Before(members[j].StartTime) })

		gi := len(idx.groups)
		ref := nodes[root].BookingReference
		idx.groups = append(idx.groups, Group{Reference: ref, Slots: members})
		idx.byReference[ref] = append(idx.byReference[ref], gi)
		for i, m := range members {
			idx.componentOf[m.ID] = gi
			idx.position[m.ID] = positionAt(i, len(members))
		}
	}
	return idx
}

func positionAt(i, n int) Position {
	switch {
	case n < 2:
		return None
	case i == 0:
		return First
	case i == n-1:
		return Last
	default:
		return Middle
	}
}

// Position returns None for singletons and for slots not in the index.
func (x *Index) Position(id int64) Position {
	return x.position[id]
}

// Component returns the group containing id, ordered by start.
func (x *Index) Component(id int64) []models.Slot {
	gi, ok := x.componentOf[id]
	if !ok {
		return nil
	}
	return x.groups[gi].Slots
}

// Groups returns every group of a booking in start order.
func (x *Index) Groups(reference string) []Group {
	out := make([]Group, 0, len(x.byReference[reference]))
	for _, gi := range x.byReference[reference] {
		out = append(out, x.groups[gi])
	}
	return out
}

func (x *Index) All() []Group { return x.groups }
