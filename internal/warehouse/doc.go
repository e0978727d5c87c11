// Package warehouse commits normalized entity tables to the partitioned
// on-disk dataset and reconciles new writes against already-committed data.
//
// A commit stages every file first, then publishes under a per-partition
// flock lease: superseded rows are pruned from prior snapshot files, the new
// snapshot's files are placed, and finally the partition manifest is swapped
// atomically. The manifest is the visibility point; a commit that dies before
// the manifest update is rolled back and leaves nothing externally visible.
// Replaying an already-committed snapshot id is a no-op success.
//
// Merging is last-write-wins by primary key: the row with the later
// fetched_at wins, ties break on the lexically greater snapshot id.
package warehouse
