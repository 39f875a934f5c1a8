package cloudstore

import (
	"context"
	"database/sql"
	"sort"

	"engram/internal/search"
)

// KeywordSearch runs full-text search (tsvector + ts_rank) against the
// cloud store.
func (c *Client) KeywordSearch(ctx context.Context, query string, filters search.Filters, limit int) ([]search.SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	var results []search.SearchResult
	for _, table := range tablesFor(filters.Collection) {
		rows, err := c.db.QueryContext(ctx, `
			SELECT id, content, `+roleColumn(table)+`, created_at,
			       ts_rank(tsv, plainto_tsquery('simple', $1)) AS score
			FROM `+table+`
			WHERE owner_id = $2 AND tsv @@ plainto_tsquery('simple', $1)
			ORDER BY score DESC
			LIMIT $3
		`, query, filters.OwnerID, limit)
		if err != nil {
			return nil, unavailable("cloud_keyword_search", err)
		}

		batch, err := scanResults(rows, search.SourceCloudKeyword, table)
		if err != nil {
			return nil, unavailable("cloud_keyword_search", err)
		}
		results = append(results, batch...)
	}

	sortByScore(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SemanticSearch runs ANN cosine search against the HNSW index. Results
// below threshold are discarded server-side.
func (c *Client) SemanticSearch(ctx context.Context, embedding []float32, filters search.Filters, limit int, threshold float64) ([]search.SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}
	vec := vectorToString(embedding)

	var results []search.SearchResult
	for _, table := range tablesFor(filters.Collection) {
		rows, err := c.db.QueryContext(ctx, `
			SELECT id, content, `+roleColumn(table)+`, created_at,
			       1 - (embedding <=> $1::vector) AS score
			FROM `+table+`
			WHERE owner_id = $2 AND embedding IS NOT NULL
			  AND 1 - (embedding <=> $1::vector) >= $3
			ORDER BY embedding <=> $1::vector
			LIMIT $4
		`, vec, filters.OwnerID, threshold, limit)
		if err != nil {
			return nil, unavailable("cloud_semantic_search", err)
		}

		batch, err := scanResults(rows, search.SourceCloudSemantic, table)
		if err != nil {
			return nil, unavailable("cloud_semantic_search", err)
		}
		results = append(results, batch...)
	}

	sortByScore(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// HybridSearch combines keyword and semantic search in a single
// round-trip per collection: two CTEs full-outer-joined on id, keeping
// the higher score for rows both legs return.
func (c *Client) HybridSearch(ctx context.Context, query string, embedding []float32, filters search.Filters, limit int) ([]search.SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}
	vec := vectorToString(embedding)

	var results []search.SearchResult
	for _, table := range tablesFor(filters.Collection) {
		role := roleColumn(table)
		rows, err := c.db.QueryContext(ctx, `
			WITH kw AS (
				SELECT id, content, `+role+` AS role, created_at,
				       ts_rank(tsv, plainto_tsquery('simple', $1)) AS score
				FROM `+table+`
				WHERE owner_id = $2 AND tsv @@ plainto_tsquery('simple', $1)
				ORDER BY score DESC
				LIMIT $4
			), sem AS (
				SELECT id, content, `+role+` AS role, created_at,
				       1 - (embedding <=> $3::vector) AS score
				FROM `+table+`
				WHERE owner_id = $2 AND embedding IS NOT NULL
				ORDER BY embedding <=> $3::vector
				LIMIT $4
			)
			SELECT COALESCE(kw.id, sem.id),
			       COALESCE(kw.content, sem.content),
			       COALESCE(kw.role, sem.role),
			       COALESCE(kw.created_at, sem.created_at),
			       GREATEST(COALESCE(kw.score, 0), COALESCE(sem.score, 0)) AS score
			FROM kw FULL OUTER JOIN sem ON kw.id = sem.id
			ORDER BY score DESC
			LIMIT $4
		`, query, filters.OwnerID, vec, limit)
		if err != nil {
			return nil, unavailable("cloud_hybrid_search", err)
		}

		batch, err := scanResults(rows, search.SourceCloudHybrid, table)
		if err != nil {
			return nil, unavailable("cloud_hybrid_search", err)
		}
		results = append(results, batch...)
	}

	sortByScore(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// --- helpers ---

// tablesFor maps an optional collection filter to the tables to query.
func tablesFor(collection string) []string {
	switch collection {
	case search.CollectionMessages:
		return []string{"messages"}
	case search.CollectionFacts:
		return []string{"facts"}
	default:
		return []string{"messages", "facts"}
	}
}

// roleColumn is the discriminator column per table: role for messages,
// category for facts.
func roleColumn(table string) string {
	if table == "facts" {
		return "category"
	}
	return "role"
}

// scanResults drains rows into SearchResults tagged with source. The
// discriminator column is role for messages and category for facts.
func scanResults(rows *sql.Rows, source, table string) ([]search.SearchResult, error) {
	defer rows.Close()

	var results []search.SearchResult
	for rows.Next() {
		var r search.SearchResult
		var disc sql.NullString
		if err := rows.Scan(&r.ID, &r.Content, &disc, &r.CreatedAt, &r.Score); err != nil {
			return nil, err
		}
		if table == "facts" {
			r.Category = disc.String
		} else {
			r.Role = disc.String
		}
		r.Source = source
		results = append(results, r)
	}
	return results, rows.Err()
}

// sortByScore sorts results by score descending, stable on input order.
func sortByScore(results []search.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}
