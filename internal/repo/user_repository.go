package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/Manzilah-gp/manzilah-web-sub001/internal/db"
	"github.com/Manzilah-gp/manzilah-web-sub001/internal/model"
)

var ErrUserNotFound = errors.New("user not found")

const searchResultLimit = 20

type userRepository struct {
	users  *db.Repository[model.User]
	logger *zap.Logger
}

type UserRepository interface {
	GetByUserID(ctx context.Context, userID string) (*model.User, error)
	ListByUserIDs(ctx context.Context, userIDs []string) ([]model.User, error)
	SearchUsers(ctx context.Context, query, excludeUserID string) ([]model.User, error)
}

func NewUserRepository(users *db.Repository[model.User], logger *zap.Logger) UserRepository {
	return &userRepository{users: users, logger: logger}
}

func (r *userRepository) GetByUserID(ctx context.Context, userID string) (*model.User, error) {
	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	user, err := r.users.FindOne(ctx, bson.M{"user_id": userID, "is_active": true})
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return user, nil
}

func (r *userRepository) ListByUserIDs(ctx context.Context, userIDs []string) ([]model.User, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		In("user_id", userIDs).
		Eq("is_active", true).
		Build()
	users, err := r.users.FindAll(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}
	return users, nil
}

// SearchUsers matches username, email and name fields case-insensitively.
// The caller enforces the minimum query length.
func (r *userRepository) SearchUsers(ctx context.Context, query, excludeUserID string) ([]model.User, error) {
	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	query = strings.TrimSpace(query)
	filter := db.NewFilter().
		Eq("is_active", true).
		Ne("user_id", excludeUserID).
		Or(
			db.NewFilter().Contains("username", query).Build(),
			db.NewFilter().Contains("email", query).Build(),
			db.NewFilter().Contains("first_name", query).Build(),
			db.NewFilter().Contains("last_name", query).Build(),
		).
		Build()

	opts := options.Find().SetSort(bson.M{"username": 1}).SetLimit(searchResultLimit)
	users, err := r.users.FindAll(ctx, filter, opts)
	if err != nil {
		r.logger.Error("user search failed", zap.String("query", query), zap.Error(err))
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	return users, nil
}

func (r *userRepository) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
