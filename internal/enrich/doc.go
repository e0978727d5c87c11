// Package enrich augments normalized track rows with externally fetched
// audio features. Track ids are batched and fetched by a bounded worker pool
// that shares one token-bucket rate limiter, so the aggregate call rate never
// exceeds the external quota regardless of worker count. Workers only return
// results; the coordinator alone folds them into the track table.
//
// A failed batch degrades only its own rows. A systemic failure (the service
// is unreachable or rejects credentials) aborts the stage: every remaining
// row is marked failed and the stage reports enrichment as unavailable, but
// the pipeline continues with degraded data.
package enrich
