package db

import (
	"context"
	"database/sql"

	"github.com/quietlog/quietlog/internal/server/entries"
	"github.com/quietlog/quietlog/internal/server/refreshtokens"
	"github.com/quietlog/quietlog/internal/server/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context) error
	Conn() *sql.DB
	Users() users.Repository
	RefreshTokens() refreshtokens.Repository
	Entries() entries.Repository
	Close() error
}
