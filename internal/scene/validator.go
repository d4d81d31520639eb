package scene

import "slices"

// Validate walks a channel's scenes (sorted by start index) pairwise,
// classifies each scene against its predecessor, merges the reports that
// describe the same scene seen through different characters and returns the
// surviving scenes together with the review list.
//
// The input is never mutated: the walk reads the input and appends survivors
// to a fresh slice, carrying the predecessor as an index into that slice.
func Validate(scenes []Scene) ([]Scene, []Scene) {
	if len(scenes) == 0 {
		return nil, nil
	}

	review := newReviewList()
	out := make([]Scene, 0, len(scenes))
	out = append(out, scenes[0].clone())
	prev := 0

	for _, s := range scenes[1:] {
		cur := s.clone()
		p := &out[prev]

		switch {
		case cur.Start.Index == p.End.Index:
			p.Status = StatusConsecutive
			cur.Status = StatusConsecutive
			review.add(*p)
			review.add(cur)
			if cur.Len() == 0 {
				continue
			}

		case cur.Start.Index > p.End.Index+1:
			p.Status = StatusGap
			cur.Status = StatusGap
			review.add(*p)
			review.add(cur)

		case cur.Start.Index < p.End.Index && cur.End.Index == p.End.Index:
			p.Characters = union(p.Characters, cur.Characters)
			cur.Status = StatusLateStartMerged
			review.add(cur)
			continue

		case cur.Start.Index < p.End.Index && cur.End.Index < p.End.Index:
			p.Characters = union(p.Characters, cur.Characters)
			cur.Status = StatusEarlyEndMerged
			review.add(cur)
			continue

		case cur.Start.Index < p.End.Index:
			p.Status = StatusOverlap
			cur.Status = StatusOverlap
			review.add(*p)
			review.add(cur)
		}

		out = append(out, cur)
		prev = len(out) - 1
	}

	// Zero-length scenes that no touching neighbour absorbed are dropped.
	// Dropping one can open a gap between the scenes around it.
	final := out[:0]
	dropped := false
	for _, s := range out {
		if s.Len() == 0 {
			s.Status = StatusDegenerate
			review.add(s)
			dropped = true
			continue
		}
		if dropped && len(final) > 0 {
			p := &final[len(final)-1]
			if s.Start.Index > p.End.Index+1 {
				p.Status = StatusGap
				s.Status = StatusGap
				review.add(*p)
				review.add(s)
			}
		}
		dropped = false
		final = append(final, s)
	}

	return final, review.scenes
}

type reviewKey struct {
	start  string
	status Status
}

// reviewList keeps one snapshot per (scene start, status) pair.
type reviewList struct {
	seen   map[reviewKey]struct{}
	scenes []Scene
}

func newReviewList() *reviewList {
	return &reviewList{seen: make(map[reviewKey]struct{})}
}

func (r *reviewList) add(s Scene) {
	k := reviewKey{start: s.Start.ID, status: s.Status}
	if _, ok := r.seen[k]; ok {
		return
	}
	r.seen[k] = struct{}{}
	r.scenes = append(r.scenes, s.clone())
}

// union returns the sorted set union of two character lists.
func union(a, b []CharacterID) []CharacterID {
	out := make([]CharacterID, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	slices.Sort(out)
	return slices.Compact(out)
}
