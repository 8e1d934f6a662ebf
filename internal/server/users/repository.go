package users

import "context"

type Repository interface {
	// Create inserts the user and fills in the generated id.
	Create(ctx context.Context, user *User) (*User, error)

	// GetByLogin returns a user or common.ErrNotFound.
	GetByLogin(ctx context.Context, login string) (*User, error)

	// GetByID returns a user or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*User, error)
}
