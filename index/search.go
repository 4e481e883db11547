package index

import (
	"sort"

	"perceptive/types"
)

// Match is a single search hit
type Match struct {
	Key      string
	Hash     types.Hash
	Address  types.ContentAddress
	Distance int
}

// SearchMatches returns every entry within maxDistance of query, nearest first.
// Entries at equal distance keep their index enumeration order.
// A key that is not a hex hash fails the whole search, in range or not.
func SearchMatches(idx *Index, query types.Hash, maxDistance int) ([]Match, error) {
	var matches []Match

	for _, entry := range idx.Entries() {
		h, err := types.ParseHash(entry.Key)
		if err != nil {
			return nil, &InvalidEntryError{Key: entry.Key, Err: err}
		}

		distance := types.HammingDistance(query, h)
		if distance > maxDistance {
			continue
		}
		matches = append(matches, Match{
			Key:      entry.Key,
			Hash:     h,
			Address:  entry.Address,
			Distance: distance,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})

	return matches, nil
}

// Search returns the content addresses within maxDistance of query, nearest first
func Search(idx *Index, query types.Hash, maxDistance int) (types.MatchResult, error) {
	matches, err := SearchMatches(idx, query, maxDistance)
	if err != nil {
		return nil, err
	}

	result := make(types.MatchResult, 0, len(matches))
	for _, m := range matches {
		result = append(result, m.Address)
	}
	return result, nil
}
