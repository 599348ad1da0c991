package catalogs

// Merge collapses records that share an ID into one canonical record per
// ID. The same model commonly arrives through several discovery strategies,
// or once from incremental reuse and once from a fresh fetch.
//
// The winner of a duplicate pair is chosen by a total order, so the result
// is independent of input ordering and Merge is idempotent:
//
//  1. higher completeness score wins
//  2. then more recent last-modified timestamp
//  3. then the record whose strategy appears earlier in strategyOrder
//
// Records with an empty ID cannot be keyed and are dropped.
func Merge(records []Model, strategyOrder []string) *Catalog {
	rank := strategyRanks(strategyOrder)

	out := New()
	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		existing, ok := out.Get(rec.ID)
		if !ok || wins(rec, existing, rank) {
			out.Set(rec)
		}
	}
	return out
}

// wins reports whether challenger replaces incumbent under the tie-break
// order. On a full tie the incumbent stays, which is stable because two
// fully tied records are interchangeable for every comparison the catalog
// makes.
func wins(challenger, incumbent Model, rank map[string]int) bool {
	if challenger.Completeness != incumbent.Completeness {
		return challenger.Completeness > incumbent.Completeness
	}
	if !challenger.LastModified.Equal(incumbent.LastModified) {
		return challenger.LastModified.After(incumbent.LastModified)
	}
	return strategyRank(challenger.Strategy, rank) < strategyRank(incumbent.Strategy, rank)
}

// strategyRanks maps each configured strategy to its position.
func strategyRanks(order []string) map[string]int {
	rank := make(map[string]int, len(order))
	for i, name := range order {
		if _, ok := rank[name]; !ok {
			rank[name] = i
		}
	}
	return rank
}

// strategyRank returns the configured position of a strategy.
// Unknown strategies sort after all configured ones.
func strategyRank(name string, rank map[string]int) int {
	if r, ok := rank[name]; ok {
		return r
	}
	return len(rank)
}
