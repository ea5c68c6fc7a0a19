package transport

import (
	"fmt"
	"sort"
)

// Set is the closed set of transports enabled in a process.
type Set struct {
	byKind map[Kind]Transport
	order  []Transport
}

// NewSet builds a set; a later transport of the same Kind replaces an
// earlier one.
func NewSet(trs ...Transport) *Set {
	s := &Set{byKind: make(map[Kind]Transport)}
	for _, t := range trs {
		if _, dup := s.byKind[t.Kind()]; !dup {
			s.order = append(s.order, t)
		} else {
			for i, o := range s.order {
				if o.Kind() == t.Kind() {
					s.order[i] = t
				}
			}
		}
		s.byKind[t.Kind()] = t
	}
	return s
}

// ByKind returns the transport of kind k, or nil.
func (s *Set) ByKind(k Kind) Transport { return s.byKind[k] }

// Kinds lists the enabled kinds in the order they were added.
func (s *Set) Kinds() []Kind {
	out := make([]Kind, 0, len(s.order))
	for _, t := range s.order {
		out = append(out, t.Kind())
	}
	return out
}

// ForLocation picks the transport that can connect to location.
func (s *Set) ForLocation(location string) (Transport, Location, error) {
	for _, t := range s.order {
		if CanConnect(t, location) {
			loc, err := ParseLocation(location)
			if err != nil {
				return nil, Location{}, err
			}
			return t, loc, nil
		}
	}
	return nil, Location{}, fmt.Errorf("%w: %q", ErrNoTransport, location)
}

// Rank orders locations from most to least preferred, dropping those no
// enabled transport can reach. Ties keep their input order.
func (s *Set) Rank(locations []string) []string {
	type cand struct {
		loc  string
		rank int
	}
	var cs []cand
	for _, l := range locations {
		if t, _, err := s.ForLocation(l); err == nil {
			cs = append(cs, cand{l, baseRank(t.Kind())})
		}
	}
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].rank > cs[j].rank })
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.loc
	}
	return out
}
