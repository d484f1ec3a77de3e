package models

// RetrievalCandidate is a corpus chunk returned by the vector index for a
// query, ranked by similarity score. Candidates are ephemeral: they feed
// context assembly and are discarded once an answer is produced.
type RetrievalCandidate struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
	Text    string  `json:"text"`
	Chapter int     `json:"chapter"`
	Section string  `json:"section"`
	Page    *int    `json:"page,omitempty"`
}
