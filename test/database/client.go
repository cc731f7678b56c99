// Package database provides database.Client fixtures for integration
// tests, built on the schema-per-test isolation in test/util.
package database

import (
	"context"
	"testing"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/faultmaven/faultmaven/pkg/database"
	"github.com/faultmaven/faultmaven/test/util"
	"github.com/stretchr/testify/require"
)

// NewTestClient returns a ready database.Client in its own schema. The
// GIN indexes are asserted here because ent auto-migration cannot create
// them; schema drop and connection close are handled by the util fixture.
func NewTestClient(t *testing.T) *database.Client {
	entClient, db := util.SetupTestDatabase(t)

	drv := entsql.OpenDB(dialect.Postgres, db)
	require.NoError(t, database.CreateGINIndexes(context.Background(), drv))

	return database.NewClientFromEnt(entClient, db)
}
