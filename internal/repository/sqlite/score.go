package sqlite

import (
	"database/sql/driver"

	sqlitedriver "modernc.org/sqlite"

	"github.com/sakif/alternatives/internal/score"
)

const scoreFunction = score.SQLFunction

// scoreSQL exposes score.Calculate to SQL as tool_score(stars, votes).
// Registered as deterministic so SQLite may evaluate it once per row.
func scoreSQL(_ *sqlitedriver.FunctionContext, args []driver.Value) (driver.Value, error) {
	return score.FromSQL(args[0], args[1]), nil
}
