// Package repomanager provides a factory for repositories so services can
// request them bound to either a plain connection or a transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmaksimov/skydrive/internal/dbx"
	"github.com/dmaksimov/skydrive/internal/server/repositories/nodes"
	"github.com/dmaksimov/skydrive/internal/server/repositories/shares"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Nodes(db dbx.DBTX) nodes.Repository
	Shares(db dbx.DBTX) shares.Repository
}
