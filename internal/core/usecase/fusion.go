package usecase

import (
	"sort"

	"github.com/dkoren/research-assistant/internal/core/domain"
)

type fusedCandidate struct {
	chunk domain.CandidateChunk
	score float64
}

// fuseWeightedRRF merges per-variant ranked lists from both sources into one
// list ordered by weighted reciprocal-rank fusion. A chunk appearing in
// several lists keeps every rank contribution additively, which rewards
// chunks found by multiple methods. Ties break on higher raw semantic score,
// then on chunk ID, so the output order is deterministic.
func fuseWeightedRRF(
	semantic, lexical [][]domain.CandidateChunk,
	semanticWeight, lexicalWeight float64,
	rrfK int,
) []domain.CandidateChunk {
	if rrfK <= 0 {
		rrfK = 60
	}
	if semanticWeight <= 0 && lexicalWeight <= 0 {
		semanticWeight, lexicalWeight = 0.7, 0.3
	}

	acc := make(map[string]fusedCandidate)
	addLists := func(lists [][]domain.CandidateChunk, weight float64) {
		for _, list := range lists {
			for rank, chunk := range list {
				candidate := acc[chunk.ID]
				candidate.chunk = mergeChunkScores(candidate.chunk, chunk)
				candidate.score += weight / float64(rrfK+rank+1)
				acc[chunk.ID] = candidate
			}
		}
	}

	addLists(semantic, semanticWeight)
	addLists(lexical, lexicalWeight)

	out := make([]domain.CandidateChunk, 0, len(acc))
	for _, c := range acc {
		chunk := c.chunk
		chunk.FusedScore = c.score
		chunk.Reranked = false
		out = append(out, chunk)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		if out[i].SemanticScore != out[j].SemanticScore {
			return out[i].SemanticScore > out[j].SemanticScore
		}
		return out[i].ID < out[j].ID
	})

	return out
}

// mergeChunkScores combines two sightings of the same chunk, keeping the best
// raw score per source and filling in fields the sparser sighting lacked.
func mergeChunkScores(current, candidate domain.CandidateChunk) domain.CandidateChunk {
	if current.ID == "" {
		return candidate
	}
	if candidate.SemanticScore > current.SemanticScore {
		current.SemanticScore = candidate.SemanticScore
	}
	if candidate.LexicalScore > current.LexicalScore {
		current.LexicalScore = candidate.LexicalScore
	}
	if current.Text == "" {
		current.Text = candidate.Text
	}
	if current.Title == "" {
		current.Title = candidate.Title
	}
	if current.Collection == "" {
		current.Collection = candidate.Collection
	}
	if current.DocumentID == "" {
		current.DocumentID = candidate.DocumentID
	}
	return current
}

func trimCandidates(chunks []domain.CandidateChunk, limit int) []domain.CandidateChunk {
	if limit <= 0 || len(chunks) <= limit {
		return chunks
	}
	return chunks[:limit]
}
