package warehouse

// mergeRecords reconciles candidate rows against already-committed rows by
// primary key. On collision the row with the later fetched_at wins; ties
// break on the lexically greater snapshot id so the outcome never depends on
// processing order. Non-colliding existing rows are kept. The result carries
// no duplicate keys: existing rows keep their positions (winners substituted
// in place) and new keys append in candidate order.
func mergeRecords(existing, candidate []Record) []Record {
	if len(existing) == 0 {
		return candidate
	}

	incoming := make(map[string]Record, len(candidate))
	for _, record := range candidate {
		incoming[record.Key] = record
	}

	merged := make([]Record, 0, len(existing)+len(candidate))
	seen := make(map[string]struct{}, len(existing))
	for _, current := range existing {
		if _, dup := seen[current.Key]; dup {
			continue
		}
		seen[current.Key] = struct{}{}
		if challenger, ok := incoming[current.Key]; ok && wins(challenger, current) {
			merged = append(merged, challenger)
			continue
		}
		merged = append(merged, current)
	}
	for _, record := range candidate {
		if _, ok := seen[record.Key]; !ok {
			seen[record.Key] = struct{}{}
			merged = append(merged, record)
		}
	}
	return merged
}

func wins(challenger, incumbent Record) bool {
	if challenger.FetchedAt.After(incumbent.FetchedAt) {
		return true
	}
	if incumbent.FetchedAt.After(challenger.FetchedAt) {
		return false
	}
	return challenger.SnapshotID > incumbent.SnapshotID
}

// groupBySnapshot splits merged rows back into per-snapshot file contents,
// preserving row order within each snapshot.
func groupBySnapshot(records []Record) map[string][]Record {
	grouped := make(map[string][]Record)
	for _, record := range records {
		grouped[record.SnapshotID] = append(grouped[record.SnapshotID], record)
	}
	return grouped
}
