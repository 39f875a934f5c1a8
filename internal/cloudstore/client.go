package cloudstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"engram/internal/search"
)

// Client implements search.CloudStore and search.CloudSearcher over the
// managed Postgres/pgvector store. Every call carries a bounded timeout;
// a timeout is treated identically to any other availability failure.
type Client struct {
	db      *sql.DB
	timeout time.Duration
	logger  zerolog.Logger
}

// ClientOptions holds configuration for Client.
type ClientOptions struct {
	DB      *sql.DB
	Timeout time.Duration // per-call bound, default 3s
	Logger  zerolog.Logger
}

// NewClient creates a Client.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("cloudstore: DB is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	return &Client{
		db:      opts.DB,
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}, nil
}

// InsertItem durably writes a message or fact and returns its id.
func (c *Client) InsertItem(ctx context.Context, item search.IndexedItem) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}

	var err error
	switch item.Collection {
	case search.CollectionMessages:
		_, err = c.db.ExecContext(ctx, `
			INSERT INTO messages (id, owner_id, session_id, role, content, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6::vector, $7)
			ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, embedding = EXCLUDED.embedding
		`, item.ID, item.OwnerID, item.SessionID, item.Role, item.Content,
			vectorOrNil(item.Embedding), item.CreatedAt)
	case search.CollectionFacts:
		_, err = c.db.ExecContext(ctx, `
			INSERT INTO facts (id, owner_id, category, content, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5::vector, $6)
			ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, embedding = EXCLUDED.embedding
		`, item.ID, item.OwnerID, item.Category, item.Content,
			vectorOrNil(item.Embedding), item.CreatedAt)
	default:
		return "", fmt.Errorf("cloudstore: unknown collection %q", item.Collection)
	}
	if err != nil {
		return "", unavailable("insert_item", err)
	}

	return item.ID, nil
}

// DeleteItem removes an item from its collection. Absent ids are a no-op.
func (c *Client) DeleteItem(ctx context.Context, collection, id string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	table, err := tableFor(collection)
	if err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = $1", id); err != nil {
		return unavailable("delete_item", err)
	}
	return nil
}

// FetchRecent returns the owner's most recent items in one collection,
// newest first.
func (c *Client) FetchRecent(ctx context.Context, ownerID, collection string, limit int) ([]search.IndexedItem, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 1000
	}

	var q string
	switch collection {
	case search.CollectionMessages:
		q = `SELECT id, owner_id, session_id, role, content, embedding::text, created_at
			FROM messages WHERE owner_id = $1
			ORDER BY created_at DESC LIMIT $2`
	case search.CollectionFacts:
		q = `SELECT id, owner_id, '' AS session_id, category AS role, content, embedding::text, created_at
			FROM facts WHERE owner_id = $1
			ORDER BY created_at DESC LIMIT $2`
	default:
		return nil, fmt.Errorf("cloudstore: unknown collection %q", collection)
	}

	rows, err := c.db.QueryContext(ctx, q, ownerID, limit)
	if err != nil {
		return nil, unavailable("fetch_recent", err)
	}
	defer rows.Close()

	var items []search.IndexedItem
	for rows.Next() {
		var item search.IndexedItem
		var sessionID, roleOrCategory sql.NullString
		var embedding sql.NullString
		if err := rows.Scan(&item.ID, &item.OwnerID, &sessionID, &roleOrCategory,
			&item.Content, &embedding, &item.CreatedAt); err != nil {
			return nil, unavailable("fetch_recent", err)
		}
		item.Collection = collection
		if collection == search.CollectionMessages {
			item.SessionID = sessionID.String
			item.Role = roleOrCategory.String
		} else {
			item.Category = roleOrCategory.String
		}
		if embedding.Valid {
			item.Embedding = parseVector(embedding.String)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("fetch_recent", err)
	}

	return items, nil
}

// CountItems returns the owner's item count in one collection.
func (c *Client) CountItems(ctx context.Context, ownerID, collection string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	table, err := tableFor(collection)
	if err != nil {
		return 0, err
	}

	var count int
	err = c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+table+" WHERE owner_id = $1", ownerID,
	).Scan(&count)
	if err != nil {
		return 0, unavailable("count_items", err)
	}
	return count, nil
}

// --- helpers ---

func tableFor(collection string) (string, error) {
	switch collection {
	case search.CollectionMessages:
		return "messages", nil
	case search.CollectionFacts:
		return "facts", nil
	default:
		return "", fmt.Errorf("cloudstore: unknown collection %q", collection)
	}
}

// unavailable maps any driver error to the availability sentinel the
// orchestrator keys its degradation on.
func unavailable(op string, err error) error {
	return &search.SearchError{Op: op, Err: fmt.Errorf("%w: %v", search.ErrCloudUnavailable, err)}
}

// vectorOrNil binds an embedding as pgvector text, or SQL NULL when the
// embedding has not been computed yet.
func vectorOrNil(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return vectorToString(embedding)
}

// vectorToString renders a vector in pgvector's text format: [x,y,z].
func vectorToString(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// parseVector parses pgvector's text format back to a float32 slice.
func parseVector(s string) []float32 {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	vec := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil
		}
		vec = append(vec, float32(f))
	}
	return vec
}

// Compile-time interface checks
var (
	_ search.CloudStore    = (*Client)(nil)
	_ search.CloudSearcher = (*Client)(nil)
)
