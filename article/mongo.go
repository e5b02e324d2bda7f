package article

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoCollection = "articles"

// MongoRepository stores articles as documents in MongoDB.
type MongoRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// articleDocument is the stored document layout.
type articleDocument struct {
	ID          string           `bson:"_id"`
	URL         string           `bson:"url"`
	Title       string           `bson:"title"`
	Excerpt     string           `bson:"excerpt"`
	Content     string           `bson:"content,omitempty"`
	ContentKey  *string          `bson:"content_key,omitempty"`
	Source      string           `bson:"source"`
	PublishedAt time.Time        `bson:"published_at"`
	CrawledAt   time.Time        `bson:"crawled_at"`
	Tags        GeopoliticalTags `bson:"geopolitical_tags"`
	Metadata    map[string]any   `bson:"metadata,omitempty"`
}

// NewMongoRepository connects to uri, selects database and ensures the
// collection indexes exist.
func NewMongoRepository(ctx context.Context, uri, database string) (*MongoRepository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	repo := &MongoRepository{
		client:     client,
		collection: client.Database(database).Collection(mongoCollection),
	}
	if err := repo.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return repo, nil
}

// ensureIndexes creates the unique url index, the title text index and the
// per-source listing index. Bodies are never indexed.
func (r *MongoRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "url", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("url_unique"),
		},
		{
			Keys:    bson.D{{Key: "title", Value: "text"}},
			Options: options.Index().SetName("title_text"),
		},
		{
			Keys:    bson.D{{Key: "source", Value: 1}, {Key: "published_at", Value: -1}},
			Options: options.Index().SetName("source_published"),
		},
		{
			Keys:    bson.D{{Key: "geopolitical_tags.countries", Value: 1}},
			Options: options.Index().SetName("countries"),
		},
	})
	return err
}

// Close disconnects the client.
func (r *MongoRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

// Insert stores a new article document.
func (r *MongoRepository) Insert(ctx context.Context, a *Article) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Tags = a.Tags.normalize()

	doc := articleDocument{
		ID:          a.ID.String(),
		URL:         a.URL,
		Title:       a.Title,
		Excerpt:     a.Excerpt,
		Content:     a.Content,
		ContentKey:  a.ContentKey,
		Source:      a.Source,
		PublishedAt: a.PublishedAt.UTC(),
		CrawledAt:   a.CrawledAt.UTC(),
		Tags:        a.Tags,
		Metadata:    a.Metadata,
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateURL
		}
		return fmt.Errorf("failed to insert article: %w", err)
	}

	return nil
}

// FindExistingURLs returns the subset of urls already stored.
func (r *MongoRepository) FindExistingURLs(ctx context.Context, urls []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})

	for _, chunk := range chunkURLs(urls) {
		cursor, err := r.collection.Find(ctx,
			bson.M{"url": bson.M{"$in": chunk}},
			options.Find().SetProjection(bson.M{"url": 1}),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to query existing urls: %w", err)
		}

		var docs []struct {
			URL string `bson:"url"`
		}
		if err := cursor.All(ctx, &docs); err != nil {
			return nil, fmt.Errorf("failed to read existing urls: %w", err)
		}
		for _, d := range docs {
			existing[d.URL] = struct{}{}
		}
	}

	return existing, nil
}

// List returns articles matching filter, newest first.
func (r *MongoRepository) List(ctx context.Context, filter Filter) ([]Article, error) {
	query := bson.M{}

	if filter.Source != nil {
		query["source"] = *filter.Source
	}
	if filter.Country != nil {
		query["geopolitical_tags.countries"] = *filter.Country
	}
	if filter.Search != nil && strings.TrimSpace(*filter.Search) != "" {
		query["$text"] = bson.M{"$search": strings.TrimSpace(*filter.Search)}
	}
	if filter.Geopolitical {
		query["$or"] = bson.A{
			bson.M{"geopolitical_tags.countries.0": bson.M{"$exists": true}},
			bson.M{"geopolitical_tags.regions.0": bson.M{"$exists": true}},
			bson.M{"geopolitical_tags.organizations.0": bson.M{"$exists": true}},
			bson.M{"geopolitical_tags.events.0": bson.M{"$exists": true}},
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "published_at", Value: -1}, {Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}

	return r.find(ctx, query, opts)
}

// Get retrieves an article by ID.
func (r *MongoRepository) Get(ctx context.Context, id uuid.UUID) (*Article, error) {
	var doc articleDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrArticleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query article: %w", err)
	}

	return doc.toArticle()
}

// Stats returns aggregate counts.
func (r *MongoRepository) Stats(ctx context.Context, topN int) (*Stats, error) {
	total, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to count articles: %w", err)
	}

	stats := &Stats{
		Total:        int(total),
		BySource:     map[string]int{},
		TopCountries: []CountryCount{},
	}

	cursor, err := r.collection.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$source"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count sources: %w", err)
	}
	var sourceCounts []struct {
		Source string `bson:"_id"`
		Count  int    `bson:"count"`
	}
	if err := cursor.All(ctx, &sourceCounts); err != nil {
		return nil, fmt.Errorf("failed to read source counts: %w", err)
	}
	for _, sc := range sourceCounts {
		stats.BySource[sc.Source] = sc.Count
	}

	if topN <= 0 {
		return stats, nil
	}

	cursor, err = r.collection.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$unwind", Value: "$geopolitical_tags.countries"}},
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$geopolitical_tags.countries"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: topN}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count countries: %w", err)
	}
	if err := cursor.All(ctx, &stats.TopCountries); err != nil {
		return nil, fmt.Errorf("failed to read country counts: %w", err)
	}

	return stats, nil
}

// ContentKeys returns every referenced content key.
func (r *MongoRepository) ContentKeys(ctx context.Context) (map[string]struct{}, error) {
	cursor, err := r.collection.Find(ctx,
		bson.M{"content_key": bson.M{"$exists": true}},
		options.Find().SetProjection(bson.M{"content_key": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query content keys: %w", err)
	}

	var docs []struct {
		ContentKey string `bson:"content_key"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to read content keys: %w", err)
	}

	keys := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		keys[d.ContentKey] = struct{}{}
	}

	return keys, nil
}

// ListLegacy returns articles whose body is still stored inline.
func (r *MongoRepository) ListLegacy(ctx context.Context, limit int) ([]Article, error) {
	query := bson.M{
		"content_key": bson.M{"$exists": false},
		"content":     bson.M{"$exists": true, "$ne": ""},
	}
	opts := options.Find().SetSort(bson.D{{Key: "crawled_at", Value: 1}}).SetLimit(int64(limit))

	return r.find(ctx, query, opts)
}

// AttachContent moves a legacy article onto the content store.
func (r *MongoRepository) AttachContent(ctx context.Context, id uuid.UUID, contentKey, excerpt string) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id.String(), "content_key": bson.M{"$exists": false}},
		bson.M{
			"$set":   bson.M{"content_key": contentKey, "excerpt": excerpt},
			"$unset": bson.M{"content": ""},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to attach content: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrArticleNotFound
	}

	return nil
}

func (r *MongoRepository) find(ctx context.Context, query bson.M, opts *options.FindOptions) ([]Article, error) {
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}

	var docs []articleDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to read articles: %w", err)
	}

	articles := make([]Article, 0, len(docs))
	for _, doc := range docs {
		a, err := doc.toArticle()
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}

	return articles, nil
}

func (d articleDocument) toArticle() (*Article, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse article ID: %w", err)
	}

	return &Article{
		ID:          id,
		URL:         d.URL,
		Title:       d.Title,
		Excerpt:     d.Excerpt,
		Content:     d.Content,
		ContentKey:  d.ContentKey,
		Source:      d.Source,
		PublishedAt: d.PublishedAt.UTC(),
		CrawledAt:   d.CrawledAt.UTC(),
		Tags:        d.Tags.normalize(),
		Metadata:    d.Metadata,
	}, nil
}
