package domain

type ChunkOrigin string

const (
	OriginLocal ChunkOrigin = "local"
	OriginWeb   ChunkOrigin = "web"
)

// CandidateChunk is one unit of retrieved text. The same chunk retrieved
// through several sources or query variants is deduplicated by ID and keeps
// its best raw score per source.
type CandidateChunk struct {
	ID         string      `json:"id"`
	DocumentID string      `json:"document_id"`
	Title      string      `json:"title"`
	Collection string      `json:"collection,omitempty"`
	Text       string      `json:"text"`
	Origin     ChunkOrigin `json:"origin"`

	LexicalScore  float64 `json:"lexical_score,omitempty"`
	SemanticScore float64 `json:"semantic_score,omitempty"`
	FusedScore    float64 `json:"fused_score,omitempty"`
	RerankScore   float64 `json:"rerank_score,omitempty"`
	Reranked      bool    `json:"reranked,omitempty"`
}

// RankingScore is the score downstream stages order by: the reranked score
// when a reranker ran, otherwise the fused score.
func (c CandidateChunk) RankingScore() float64 {
	if c.Reranked {
		return c.RerankScore
	}
	return c.FusedScore
}

// GradedChunk carries the grader's verdict for a candidate. Relevance is the
// union across query variants: a chunk relevant to any variant stays relevant.
type GradedChunk struct {
	Chunk      CandidateChunk `json:"chunk"`
	Relevant   bool           `json:"relevant"`
	Confidence float64        `json:"confidence"`
	Variant    int            `json:"variant"`
}
