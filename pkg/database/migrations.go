package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql"
)

// ginIndexes are the expression indexes backing full-text case search.
// They live outside the migration files because the ent schema has no way
// to express to_tsvector indexes, and CREATE INDEX IF NOT EXISTS makes
// them safe to assert on every startup.
var ginIndexes = []struct {
	name string
	stmt string
}{
	{
		name: "idx_cases_description_gin",
		stmt: `CREATE INDEX IF NOT EXISTS idx_cases_description_gin
			ON cases USING gin(to_tsvector('english', description))`,
	},
	{
		name: "idx_cases_investigation_state_gin",
		stmt: `CREATE INDEX IF NOT EXISTS idx_cases_investigation_state_gin
			ON cases USING gin(to_tsvector('english', COALESCE(investigation_state, '')))`,
	},
}

// CreateGINIndexes asserts the full-text GIN indexes over case
// descriptions and the serialized investigation state.
func CreateGINIndexes(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()
	for _, idx := range ginIndexes {
		if _, err := db.ExecContext(ctx, idx.stmt); err != nil {
			return fmt.Errorf("failed to create %s: %w", idx.name, err)
		}
	}
	return nil
}
