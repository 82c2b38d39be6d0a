package repo

import (
	"context"
	"fmt"

	"github.com/mkessler/taskloom/internal/model"
)

// CreateUser validates and writes a new user account.
func (r *Repo) CreateUser(ctx context.Context, sess Session, user *model.User) (*model.User, error) {
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("invalid user: %w", err)
	}
	if user.ID == "" {
		user.ID = newID()
	}
	now := r.now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	row, err := model.RowOf(user)
	if err != nil {
		return nil, err
	}
	if err := r.writeEntity(ctx, sess, model.KindUsers, row); err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateUser writes the user's new state.
func (r *Repo) UpdateUser(ctx context.Context, sess Session, user *model.User) (*model.User, error) {
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("invalid user: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	var prev model.User
	if err := r.getEntity(ctx, model.KindUsers, user.ID, &prev); err != nil {
		return nil, err
	}
	user.CreatedAt = prev.CreatedAt
	user.UpdatedAt = r.now().UTC()

	row, err := model.RowOf(user)
	if err != nil {
		return nil, err
	}
	if err := r.writeEntity(ctx, sess, model.KindUsers, row); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser fetches one user by id.
func (r *Repo) GetUser(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := r.getEntity(ctx, model.KindUsers, id, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns every known user.
func (r *Repo) ListUsers(ctx context.Context) ([]*model.User, error) {
	rows, err := r.store.QueryRows(ctx, model.KindUsers, "")
	if err != nil {
		return nil, err
	}
	users := make([]*model.User, 0, len(rows))
	for _, row := range rows {
		var u model.User
		if err := model.FromRow(row, &u); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	return users, nil
}
