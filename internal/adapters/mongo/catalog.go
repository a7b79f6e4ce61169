package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/robertarktes/showtime-booking/internal/domain"
	"github.com/robertarktes/showtime-booking/internal/observability"
)

// CatalogRepository reads movie metadata owned by the catalog service.
type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("movies"),
		logger: logger,
	}
}

type MovieDoc struct {
	ID             string    `bson:"_id"`
	Title          string    `bson:"title"`
	PosterRef      string    `bson:"poster_ref,omitempty"`
	Genre          string    `bson:"genre,omitempty"`
	RuntimeMinutes int       `bson:"runtime_minutes,omitempty"`
	Rating         string    `bson:"rating,omitempty"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func (d MovieDoc) toDomain() (domain.Movie, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return domain.Movie{}, err
	}
	return domain.Movie{
		ID:             id,
		Title:          d.Title,
		PosterRef:      d.PosterRef,
		Genre:          d.Genre,
		RuntimeMinutes: d.RuntimeMinutes,
		Rating:         d.Rating,
	}, nil
}

// Movies returns the catalog entries found among ids.
func (c *CatalogRepository) Movies(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Movie, error) {
	out := make(map[uuid.UUID]domain.Movie, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	cur, err := c.coll.Find(ctx, bson.M{"_id": bson.M{"$in": keys}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc MovieDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		m, err := doc.toDomain()
		if err != nil {
			c.logger.WithField("movie_id", doc.ID).Warn("skipping movie with malformed id")
			continue
		}
		out[m.ID] = m
	}
	return out, cur.Err()
}

func (c *CatalogRepository) UpsertMovie(ctx context.Context, m domain.Movie) error {
	doc := MovieDoc{
		ID:             m.ID.String(),
		Title:          m.Title,
		PosterRef:      m.PosterRef,
		Genre:          m.Genre,
		RuntimeMinutes: m.RuntimeMinutes,
		Rating:         m.Rating,
		UpdatedAt:      time.Now().UTC(),
	}
	_, err := c.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		c.logger.WithError(err).Error("failed to upsert movie")
		return err
	}
	return nil
}
