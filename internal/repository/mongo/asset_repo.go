package mongo

import (
	"context"
	"errors"
	"time"

	"videoverse/video-api/internal/domain"
	"videoverse/video-api/internal/repository"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const assetCollectionName = "assets"

// mongoAssetRepository implements repository.AssetRepository
type mongoAssetRepository struct {
	collection *mongo.Collection
}

// NewMongoAssetRepository creates a new Asset repository backed by MongoDB.
func NewMongoAssetRepository(db *mongo.Database) repository.AssetRepository {
	return &mongoAssetRepository{
		collection: db.Collection(assetCollectionName),
	}
}

// Create inserts a new asset record into the catalog. The asset id is an
// opaque UUID string generated here unless the caller pre-assigned one.
func (r *mongoAssetRepository) Create(ctx context.Context, asset *domain.Asset) (string, error) {
	if asset.StorageKey == "" {
		return "", errors.New("asset requires a storage key")
	}

	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now().UTC()
	}

	if _, err := r.collection.InsertOne(ctx, asset); err != nil {
		return "", err
	}
	return asset.ID, nil
}

// GetByID retrieves one asset record by its id.
func (r *mongoAssetRepository) GetByID(ctx context.Context, id string) (*domain.Asset, error) {
	var asset domain.Asset
	filter := bson.M{"_id": id}

	err := r.collection.FindOne(ctx, filter).Decode(&asset)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &asset, nil
}

// GetByIDs retrieves several assets at once. The result preserves the order
// of the requested ids; a missing id yields ErrNotFound so callers can fail
// merge preconditions with a precise error.
func (r *mongoAssetRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Asset, error) {
	filter := bson.M{"_id": bson.M{"$in": ids}}
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	byID := make(map[string]domain.Asset, len(ids))
	for cursor.Next(ctx) {
		var asset domain.Asset
		if err := cursor.Decode(&asset); err != nil {
			return nil, err
		}
		byID[asset.ID] = asset
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	assets := make([]domain.Asset, 0, len(ids))
	for _, id := range ids {
		asset, ok := byID[id]
		if !ok {
			return nil, repository.ErrNotFound
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

// List returns all asset records, newest first.
func (r *mongoAssetRepository) List(ctx context.Context) ([]domain.Asset, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	assets := []domain.Asset{}
	if err := cursor.All(ctx, &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

// UpdateMedia sets duration and size on an existing asset record.
func (r *mongoAssetRepository) UpdateMedia(ctx context.Context, id string, duration float64, size int64) error {
	filter := bson.M{"_id": id}
	update := bson.M{"$set": bson.M{"duration": duration, "size": size}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureAssetIndexes creates necessary indexes for the assets collection.
func EnsureAssetIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			// Storage keys are unique per object; guards against double
			// registration of the same stored file.
			Keys:    bson.D{{Key: "storageKey", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "createdAt", Value: -1}},
		},
	}
	_, _ = collection.Indexes().CreateMany(ctx, indexes)
}
