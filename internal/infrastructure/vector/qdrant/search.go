package qdrant

import (
	"context"

	"github.com/dkoren/research-assistant/internal/core/domain"
	"github.com/dkoren/research-assistant/internal/core/ports"
)

// SemanticSearch serves the dense retrieval leg: embed the query text, then
// run a named-vector search over the chunk store.
type SemanticSearch struct {
	client   *Client
	embedder ports.Embedder
}

func NewSemanticSearch(client *Client, embedder ports.Embedder) *SemanticSearch {
	return &SemanticSearch{client: client, embedder: embedder}
}

func (s *SemanticSearch) Search(ctx context.Context, queryText string, scope domain.Scope, limit int) ([]domain.CandidateChunk, error) {
	vector, err := s.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSourceUnavailable, "embed query", err)
	}
	return s.client.searchDense(ctx, vector, scope, limit)
}

// LexicalSearch serves the sparse retrieval leg. The query is encoded into
// hashed BM25 term weights client-side; scoring happens in Qdrant against the
// matching sparse document vectors, so no embedding call is needed.
type LexicalSearch struct {
	client *Client
}

func NewLexicalSearch(client *Client) *LexicalSearch {
	return &LexicalSearch{client: client}
}

func (l *LexicalSearch) Search(ctx context.Context, queryText string, scope domain.Scope, limit int) ([]domain.CandidateChunk, error) {
	return l.client.searchSparse(ctx, encodeSparseQuery(queryText), scope, limit)
}
