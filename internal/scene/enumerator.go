package scene

import (
	"fmt"
	"strconv"
)

// Characters scans a channel once and returns the character ids present, in
// order of first appearance. Author ids at or above threshold belong to
// ordinary accounts and are skipped.
func Characters(ch *Channel, threshold int) ([]CharacterID, error) {
	if threshold <= 0 {
		threshold = DefaultCharacterThreshold
	}

	seen := make(map[CharacterID]struct{})
	var ids []CharacterID

	for i, m := range ch.Messages {
		if m.ID == "" {
			return nil, fmt.Errorf("%w: message %d has no id", ErrMalformedChannel, i)
		}
		if m.Author.ID == "" {
			return nil, fmt.Errorf("%w: message %s has no author id", ErrMalformedChannel, m.ID)
		}
		n, err := strconv.ParseInt(m.Author.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: message %s author id %q: %v", ErrMalformedChannel, m.ID, m.Author.ID, err)
		}
		if n <= 0 || n >= int64(threshold) {
			continue
		}

		id := CharacterID(n)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return ids, nil
}
