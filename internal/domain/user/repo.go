package user

import (
	"context"
	"errors"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrLoginTaken = errors.New("login already in use")
)

// Repository defines the persistence interface for users.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByLogin(ctx context.Context, login string) (*User, error)
	Update(ctx context.Context, u *User) error
	List(ctx context.Context, limit, offset int) ([]*User, int, error)
	// ListWithFlag returns users holding reviewer_flag, or
	// third_reviewer_flag when third is set, ordered by id.
	ListWithFlag(ctx context.Context, third bool) ([]*User, error)
}
