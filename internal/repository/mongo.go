package repository

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/userhub/userhub/internal/models"
)

const usersCollection = "users"

type MongoUserStore struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewMongoUserStore ensures the unique indexes backing the email/phone
// invariants. Index creation is idempotent.
func NewMongoUserStore(db *mongo.Database, logger *slog.Logger) *MongoUserStore {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "phone", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	}
	if _, err := db.Collection(usersCollection).Indexes().CreateMany(ctx, indexes); err != nil {
		logger.Warn("failed to ensure user indexes", "error", err)
	}

	return &MongoUserStore{db: db, logger: logger}
}

func (s *MongoUserStore) users() *mongo.Collection {
	return s.db.Collection(usersCollection)
}

func (s *MongoUserStore) Create(ctx context.Context, u *models.User) (primitive.ObjectID, error) {
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.users().InsertOne(ctx, u); err != nil {
		if dup := duplicateKeyError(err); dup != nil {
			return primitive.NilObjectID, dup
		}
		s.logger.Error("user insert failed", "email", u.Email, "error", err)
		return primitive.NilObjectID, err
	}
	return u.ID, nil
}

func (s *MongoUserStore) ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error) {
	filter := bson.M{"$or": bson.A{bson.M{"email": email}, bson.M{"phone": phone}}}
	count, err := s.users().CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *MongoUserStore) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	filter := bson.M{"$or": bson.A{bson.M{"email": identifier}, bson.M{"phone": identifier}}}
	var u models.User
	if err := s.users().FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *MongoUserStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	opts := options.FindOne().SetProjection(bson.M{"password": 0})
	if err := s.users().FindOne(ctx, bson.M{"_id": id}, opts).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *MongoUserStore) RoleByID(ctx context.Context, id primitive.ObjectID) (string, error) {
	var doc struct {
		Role string `bson:"role"`
	}
	opts := options.FindOne().SetProjection(bson.M{"role": 1})
	if err := s.users().FindOne(ctx, bson.M{"_id": id}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return doc.Role, nil
}

func (s *MongoUserStore) List(ctx context.Context, q ListQuery) ([]models.User, int64, error) {
	filter := bson.M{}
	if q.Search != "" {
		re := primitive.Regex{Pattern: q.Search, Options: "i"}
		filter["$or"] = bson.A{bson.M{"name": re}, bson.M{"email": re}}
	}

	total, err := s.users().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetProjection(bson.M{"password": 0}).
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(q.Skip)).
		SetLimit(int64(q.Limit))

	cur, err := s.users().Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *MongoUserStore) Update(ctx context.Context, id primitive.ObjectID, upd UserUpdate) (*models.User, error) {
	set := bson.M{"updated_at": time.Now()}
	setIf(set, "name", upd.Name)
	setIf(set, "email", upd.Email)
	setIf(set, "phone", upd.Phone)
	setIf(set, "address", upd.Address)
	setIf(set, "state", upd.State)
	setIf(set, "city", upd.City)
	setIf(set, "country", upd.Country)
	setIf(set, "pincode", upd.Pincode)
	setIf(set, "profile_image", upd.ProfileImage)
	setIf(set, "role", upd.Role)

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"password": 0})

	var u models.User
	err := s.users().FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		if dup := duplicateKeyError(err); dup != nil {
			return nil, dup
		}
		return nil, err
	}
	return &u, nil
}

func (s *MongoUserStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.users().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *MongoUserStore) Stats(ctx context.Context) (*Stats, error) {
	total, err := s.users().CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, err
	}

	cities, err := s.users().Distinct(ctx, "city", bson.M{})
	if err != nil {
		return nil, err
	}

	opts := options.Find().
		SetProjection(bson.M{"name": 1, "email": 1, "created_at": 1}).
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(6)
	cur, err := s.users().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var recent []struct {
		ID        primitive.ObjectID `bson:"_id"`
		Name      string             `bson:"name"`
		Email     string             `bson:"email"`
		CreatedAt time.Time          `bson:"created_at"`
	}
	if err := cur.All(ctx, &recent); err != nil {
		return nil, err
	}

	previews := make([]models.UserPreview, len(recent))
	for i, r := range recent {
		previews[i] = models.UserPreview{
			ID:        r.ID.Hex(),
			Name:      r.Name,
			Email:     r.Email,
			CreatedAt: r.CreatedAt,
		}
	}

	return &Stats{
		TotalUsers:  total,
		TotalCities: len(cities),
		RecentUsers: previews,
	}, nil
}

func setIf(set bson.M, key string, val *string) {
	if val != nil {
		set[key] = *val
	}
}

// duplicateKeyError maps mongo code 11000 to the matching sentinel by the
// violated index name.
func duplicateKeyError(err error) error {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				if strings.Contains(e.Message, "email_1") {
					return ErrDuplicateEmail
				}
				if strings.Contains(e.Message, "phone_1") {
					return ErrDuplicatePhone
				}
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		if strings.Contains(ce.Message, "email_1") {
			return ErrDuplicateEmail
		}
		if strings.Contains(ce.Message, "phone_1") {
			return ErrDuplicatePhone
		}
	}
	return nil
}
