package models

// Hit is a chunk returned by a similarity query together with its score.
type Hit struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"` // cosine similarity, higher is closer
	Rank  int     `json:"rank"`
}

// Chunks strips the scores from hits, preserving rank order.
func Chunks(hits []Hit) []Chunk {
	out := make([]Chunk, len(hits))
	for i, h := range hits {
		out[i] = h.Chunk
	}
	return out
}
