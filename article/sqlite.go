package article

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// SQLiteRepository stores articles in a SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

// timeLayout is fixed-width UTC so that lexical order in SQLite matches
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// NewSQLiteRepository opens (or creates) the database at dbPath.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// initSchema creates the articles tables and indexes if they don't exist.
func (r *SQLiteRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		excerpt TEXT NOT NULL DEFAULT '',
		content TEXT,
		content_key TEXT,
		source TEXT NOT NULL,
		published_at TEXT NOT NULL,
		crawled_at TEXT NOT NULL,
		tags TEXT NOT NULL,
		tagged INTEGER NOT NULL DEFAULT 0,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_articles_source_published ON articles (source, published_at DESC);
	CREATE INDEX IF NOT EXISTS idx_articles_published ON articles (published_at DESC);
	CREATE INDEX IF NOT EXISTS idx_articles_title ON articles (title COLLATE NOCASE);

	CREATE TABLE IF NOT EXISTS article_countries (
		article_id TEXT NOT NULL REFERENCES articles (id),
		country TEXT NOT NULL,
		PRIMARY KEY (article_id, country)
	);
	CREATE INDEX IF NOT EXISTS idx_article_countries_country ON article_countries (country);
	`

	_, err := r.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Insert stores a new article and its country tags in one transaction.
func (r *SQLiteRepository) Insert(ctx context.Context, a *Article) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Tags = a.Tags.normalize()

	tagsJSON, err := json.Marshal(a.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	var metadataJSON *string
	if a.Metadata != nil {
		data, err := json.Marshal(a.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		s := string(data)
		metadataJSON = &s
	}

	var content *string
	if a.Content != "" {
		content = &a.Content
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO articles (
			id, url, title, excerpt, content, content_key, source,
			published_at, crawled_at, tags, tagged, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		a.ID.String(),
		a.URL,
		a.Title,
		a.Excerpt,
		content,
		a.ContentKey,
		a.Source,
		formatTime(a.PublishedAt),
		formatTime(a.CrawledAt),
		string(tagsJSON),
		!a.Tags.IsEmpty(),
		metadataJSON,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateURL
		}
		return fmt.Errorf("failed to insert article: %w", err)
	}

	for _, country := range a.Tags.Countries {
		_, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO article_countries (article_id, country) VALUES (?, ?)",
			a.ID.String(), country,
		)
		if err != nil {
			return fmt.Errorf("failed to insert country tag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit article: %w", err)
	}

	return nil
}

// FindExistingURLs returns the subset of urls already stored.
func (r *SQLiteRepository) FindExistingURLs(ctx context.Context, urls []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})

	for _, chunk := range chunkURLs(urls) {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, u := range chunk {
			args[i] = u
		}

		rows, err := r.db.QueryContext(ctx,
			"SELECT url FROM articles WHERE url IN ("+placeholders+")", args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query existing urls: %w", err)
		}

		for rows.Next() {
			var u string
			if err := rows.Scan(&u); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan url: %w", err)
			}
			existing[u] = struct{}{}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read existing urls: %w", err)
		}
	}

	return existing, nil
}

const articleColumns = `a.id, a.url, a.title, a.excerpt, a.content, a.content_key,
	a.source, a.published_at, a.crawled_at, a.tags, a.metadata`

// List returns articles matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) ([]Article, error) {
	query := "SELECT " + articleColumns + " FROM articles a"

	var whereClauses []string
	var args []any

	if filter.Source != nil {
		whereClauses = append(whereClauses, "a.source = ?")
		args = append(args, *filter.Source)
	}
	if filter.Country != nil {
		whereClauses = append(whereClauses,
			"EXISTS (SELECT 1 FROM article_countries c WHERE c.article_id = a.id AND c.country = ?)")
		args = append(args, *filter.Country)
	}
	if filter.Search != nil && strings.TrimSpace(*filter.Search) != "" {
		whereClauses = append(whereClauses, `a.title LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.TrimSpace(*filter.Search))+"%")
	}
	if filter.Geopolitical {
		whereClauses = append(whereClauses, "a.tagged = 1")
	}

	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}

	query += " ORDER BY a.published_at DESC, a.id"

	limit := -1
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, max(filter.Offset, 0))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	articles := []Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read articles: %w", err)
	}

	return articles, nil
}

// Get retrieves an article by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id uuid.UUID) (*Article, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+articleColumns+" FROM articles a WHERE a.id = ?", id.String())

	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrArticleNotFound
	}
	if err != nil {
		return nil, err
	}

	return a, nil
}

// Stats returns aggregate counts.
func (r *SQLiteRepository) Stats(ctx context.Context, topN int) (*Stats, error) {
	stats := &Stats{
		BySource:     map[string]int{},
		TopCountries: []CountryCount{},
	}

	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles").Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("failed to count articles: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, "SELECT source, COUNT(*) FROM articles GROUP BY source")
	if err != nil {
		return nil, fmt.Errorf("failed to count sources: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("failed to scan source count: %w", err)
		}
		stats.BySource[source] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read source counts: %w", err)
	}

	countryRows, err := r.db.QueryContext(ctx, `
		SELECT country, COUNT(*) AS n FROM article_countries
		GROUP BY country ORDER BY n DESC, country LIMIT ?`, topN)
	if err != nil {
		return nil, fmt.Errorf("failed to count countries: %w", err)
	}
	defer countryRows.Close()
	for countryRows.Next() {
		var cc CountryCount
		if err := countryRows.Scan(&cc.Country, &cc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan country count: %w", err)
		}
		stats.TopCountries = append(stats.TopCountries, cc)
	}
	if err := countryRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read country counts: %w", err)
	}

	return stats, nil
}

// ContentKeys returns every referenced content key.
func (r *SQLiteRepository) ContentKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT content_key FROM articles WHERE content_key IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("failed to query content keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan content key: %w", err)
		}
		keys[key] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read content keys: %w", err)
	}

	return keys, nil
}

// ListLegacy returns articles whose body is still stored inline.
func (r *SQLiteRepository) ListLegacy(ctx context.Context, limit int) ([]Article, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+articleColumns+` FROM articles a
		WHERE a.content_key IS NULL AND a.content IS NOT NULL AND a.content != ''
		ORDER BY a.crawled_at LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query legacy articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read legacy articles: %w", err)
	}

	return articles, nil
}

// AttachContent moves a legacy article onto the content store.
func (r *SQLiteRepository) AttachContent(ctx context.Context, id uuid.UUID, contentKey, excerpt string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE articles SET content_key = ?, excerpt = ?, content = NULL
		WHERE id = ? AND content_key IS NULL`,
		contentKey, excerpt, id.String())
	if err != nil {
		return fmt.Errorf("failed to attach content: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrArticleNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanArticle parses one row selected with articleColumns.
func scanArticle(row rowScanner) (*Article, error) {
	var idStr, url, title, excerpt, source, publishedAtStr, crawledAtStr, tagsJSON string
	var content, contentKey, metadataJSON sql.NullString

	err := row.Scan(
		&idStr, &url, &title, &excerpt, &content, &contentKey,
		&source, &publishedAtStr, &crawledAtStr, &tagsJSON, &metadataJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan article: %w", err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse article ID: %w", err)
	}

	a := &Article{
		ID:          id,
		URL:         url,
		Title:       title,
		Excerpt:     excerpt,
		Source:      source,
		PublishedAt: parseTime(publishedAtStr),
		CrawledAt:   parseTime(crawledAtStr),
	}
	if content.Valid {
		a.Content = content.String
	}
	if contentKey.Valid {
		a.ContentKey = &contentKey.String
	}

	if err := json.Unmarshal([]byte(tagsJSON), &a.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	a.Tags = a.Tags.normalize()

	if metadataJSON.Valid {
		if err := json.Unmarshal([]byte(metadataJSON.String), &a.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return a, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}
