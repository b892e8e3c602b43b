// Package podcastcache resolves podcast metadata from the snapshot tables
// the platform already keeps, so displays avoid calling the podcast
// provider.
//
// Three tables are consulted in fixed priority order:
//
//	client dashboard > prospect dashboard > booking records
//
// A single lookup checks them in that order and stops at the first hit. A
// batch lookup queries all three in parallel and merges lowest priority
// first so client dashboard data always wins on conflict.
package podcastcache
