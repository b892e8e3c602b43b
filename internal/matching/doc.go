// Package matching ranks catalog podcasts against a guest profile.
//
// Candidates come from vector similarity search (Searcher). When there are
// more candidates than the target list size, a QualityFilter asks a chat
// model to pick the best ones; any model or parse failure degrades to the
// top candidates by similarity. Scorer grades arbitrary podcasts against a
// profile in parallel for the compatibility endpoint.
package matching
