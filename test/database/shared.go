package database

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"testing"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/faultmaven/faultmaven/ent"
	"github.com/faultmaven/faultmaven/pkg/database"
	"github.com/faultmaven/faultmaven/test/util"
	"github.com/stretchr/testify/require"
)

// SharedTestDB is one migrated schema that several simulated replicas
// attach to. Each replica gets an independent pool through NewClient, so
// tests can exercise NOTIFY/LISTEN fan-out and case lease contention
// across pools while still reading the same tables.
type SharedTestDB struct {
	connStrWithSchema string
	baseConnStr       string
	schemaName        string
}

// NewSharedTestDB provisions the schema, migrates it, and asserts the GIN
// indexes. The schema drop is registered on t.Cleanup; LIFO cleanup order
// means replica clients close before the schema goes away.
func NewSharedTestDB(t *testing.T) *SharedTestDB {
	t.Helper()
	ctx := context.Background()

	s := &SharedTestDB{
		baseConnStr: util.GetBaseConnectionString(t),
		schemaName:  util.GenerateSchemaName(t),
	}
	s.connStrWithSchema = util.AddSearchPathToConnString(s.baseConnStr, s.schemaName)

	setup, err := stdsql.Open("pgx", s.baseConnStr)
	require.NoError(t, err)
	_, err = setup.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %s", s.schemaName))
	require.NoError(t, err)
	_ = setup.Close()
	t.Logf("SharedTestDB: created schema %s", s.schemaName)

	// Migrate through a throwaway client; replicas open their own pools.
	db, err := stdsql.Open("pgx", s.connStrWithSchema)
	require.NoError(t, err)
	drv := entsql.OpenDB(dialect.Postgres, db)
	entClient := ent.NewClient(ent.Driver(drv))

	require.NoError(t, entClient.Schema.Create(ctx))
	require.NoError(t, database.CreateGINIndexes(ctx, drv))

	_ = entClient.Close()
	_ = db.Close()

	t.Cleanup(func() { s.dropSchema(t) })
	return s
}

// NewClient opens a fresh pool onto the shared schema. Independent pools
// let a test shut one replica down without disturbing the others.
func (s *SharedTestDB) NewClient(t *testing.T) *database.Client {
	t.Helper()

	db, err := stdsql.Open("pgx", s.connStrWithSchema)
	require.NoError(t, err)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	drv := entsql.OpenDB(dialect.Postgres, db)
	entClient := ent.NewClient(ent.Driver(drv))

	t.Cleanup(func() {
		_ = entClient.Close()
		_ = db.Close()
	})
	return database.NewClientFromEnt(entClient, db)
}

// BaseConnString returns the connection string without a search_path, for
// dedicated connections that operate database-wide (NOTIFY/LISTEN is not
// schema-scoped).
func (s *SharedTestDB) BaseConnString() string {
	return s.baseConnStr
}

func (s *SharedTestDB) dropSchema(t *testing.T) {
	db, err := stdsql.Open("pgx", s.baseConnStr)
	if err != nil {
		t.Logf("SharedTestDB: warning: could not connect to drop schema %s: %v", s.schemaName, err)
		return
	}
	defer func() { _ = db.Close() }()
	if _, err := db.ExecContext(context.Background(),
		fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", s.schemaName)); err != nil {
		t.Logf("SharedTestDB: warning: failed to drop schema %s: %v", s.schemaName, err)
	}
}
