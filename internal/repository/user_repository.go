package repository

import (
	"context"
	"fmt"

	"github.com/digkill/PlantDoctor/internal/kv"
	"github.com/digkill/PlantDoctor/internal/models"
	"github.com/digkill/PlantDoctor/internal/retry"
)

// UserRepository stores user records and the per-scope session pointers that
// name the signed-in user.
type UserRepository struct {
	store jsonStore
}

func NewUserRepository(store kv.Store, policy retry.Policy) *UserRepository {
	return &UserRepository{store: jsonStore{kv: store, policy: policy}}
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	found, err := r.store.get(ctx, UserKey(email), &u)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &u, nil
}

func (r *UserRepository) Save(ctx context.Context, user models.User) error {
	if err := r.store.put(ctx, UserKey(user.Email), user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// CurrentUser returns the user the session pointer of scope refers to, or nil
// when the scope has no live session.
func (r *UserRepository) CurrentUser(ctx context.Context, scope string) (*models.User, error) {
	var u models.User
	found, err := r.store.get(ctx, SessionKey(scope), &u)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &u, nil
}

func (r *UserRepository) SetCurrentUser(ctx context.Context, scope string, user models.User) error {
	if err := r.store.put(ctx, SessionKey(scope), user); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func (r *UserRepository) ClearCurrentUser(ctx context.Context, scope string) error {
	if err := r.store.remove(ctx, SessionKey(scope)); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
