// Package domain holds the value types shared by the matching pipeline:
// guest profiles, podcasts and their similarity candidates, cache
// snapshots, outreach sheet rows and run summaries.
//
// Nothing here talks to a database, an API or the network. Types carry
// json/db tags and small pure helpers (validation, row formatting) and
// import no other internal package.
package domain
