package dispatch

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/chriserin/gherkit/internal/config"
	"github.com/chriserin/gherkit/internal/database"
	"github.com/chriserin/gherkit/internal/expect"
	"github.com/chriserin/gherkit/internal/failure"
	"github.com/chriserin/gherkit/internal/response"
)

func registerDB(t *Table) {
	t.mustRegister("db.connect", `I connect to database "{name}"`, dbConnect)
	t.mustRegister("db.connect.configured", `I connect to configured database`, dbConnectConfigured)

	t.mustRegister("db.query.params", `I execute query "{sql}" with params "{params}"`, dbQueryParams, RawArgs(1))
	t.mustRegister("db.update.params", `I execute update "{sql}" with params "{params}"`, dbUpdateParams, RawArgs(1))
	t.mustRegister("db.query", `I execute SQL query "{sql}"`, dbQuery)
	t.mustRegister("db.update", `I execute SQL update "{sql}"`, dbUpdate)

	t.mustRegister("db.rows", `the query result should contain "{count}" rows`, dbRowCount)
	t.mustRegister("db.rows.short", `I should get results with "{count}" rows`, dbRowCount)
	t.mustRegister("db.field", `the query result row "{row}" column "{column}" should be "{expected}"`, dbField)
	t.mustRegister("db.field.first", `the result field "{column}" should be "{expected}"`, dbFirstField)
	t.mustRegister("db.column", `the results should contain column "{column}"`, dbColumn)
	t.mustRegister("db.affected", `the affected rows should be "{count}"`, dbAffected)
}

// dbConnect accepts a named database from settings, a driver type, or a
// path to a sqlite file. Connecting twice to the same name reuses the
// connection.
func dbConnect(ctx context.Context, sc *Scenario, c Call) error {
	name := c.Args[0]
	cfg, err := sc.env.Settings.ResolveDatabase(name)
	if err != nil {
		switch filepath.Ext(name) {
		case ".db", ".sqlite", ".sqlite3":
			cfg = config.Database{Type: "sqlite", Name: name}
		default:
			return &failure.ConfigurationError{Source: "settings", Reason: err.Error()}
		}
	}
	return sc.connect(ctx, name, cfg)
}

func dbConnectConfigured(ctx context.Context, sc *Scenario, _ Call) error {
	return sc.connect(ctx, "default", sc.env.Settings.Database)
}

func (sc *Scenario) connect(ctx context.Context, name string, cfg config.Database) error {
	if conn, ok := sc.dbs[name]; ok {
		sc.db = conn
		return nil
	}
	sc.sent("connect %s (%s)", name, cfg.Type)
	ctx, cancel := bound(ctx, sc.env.Settings.Timeouts.Default())
	defer cancel()
	conn, err := sc.env.OpenDB(ctx, cfg)
	if err != nil {
		return failure.Action(failure.Database, "connect", err)
	}
	sc.dbs[name] = conn
	sc.db = conn
	sc.logger.Info("Database connected", zap.String("name", name), zap.String("type", cfg.Type))
	return nil
}

// SQL text reaches these handlers already interpolated. Values are
// substituted textually, so they are not escaped for the target dialect.
func dbQuery(ctx context.Context, sc *Scenario, c Call) error {
	return sc.query(ctx, c.Args[0])
}

func dbUpdate(ctx context.Context, sc *Scenario, c Call) error {
	return sc.execute(ctx, c.Args[0])
}

// dbQueryParams passes each comma separated parameter to the driver as a
// bound argument, interpolating them one by one.
func dbQueryParams(ctx context.Context, sc *Scenario, c Call) error {
	args, err := sc.params(c.Args[1])
	if err != nil {
		return err
	}
	return sc.query(ctx, c.Args[0], args...)
}

func dbUpdateParams(ctx context.Context, sc *Scenario, c Call) error {
	args, err := sc.params(c.Args[1])
	if err != nil {
		return err
	}
	return sc.execute(ctx, c.Args[0], args...)
}

func (sc *Scenario) params(raw string) ([]any, error) {
	args := database.SplitParams(raw)
	for i, a := range args {
		s, err := sc.interp.Interpolate(a.(string))
		if err != nil {
			return nil, err
		}
		args[i] = s
	}
	return args, nil
}

func (sc *Scenario) query(ctx context.Context, sqlText string, args ...any) error {
	conn, err := sc.conn()
	if err != nil {
		return err
	}
	sc.sentSQL(sqlText, args)
	ctx, cancel := bound(ctx, sc.env.Settings.Timeouts.Default())
	defer cancel()
	rows, err := conn.Query(ctx, sqlText, args...)
	record := sqlEvidence{Time: time.Now(), SQL: sqlText, Params: args, Error: errText(err)}
	if err != nil {
		sc.recordJSON("SQL query", record)
		return failure.Action(failure.Database, "query", err)
	}
	count := len(rows)
	record.Rows, record.RowCount = rows, &count
	sc.recordJSON("SQL query", record)
	sc.last = response.FromRows(rows)
	sc.logger.Info("Query executed", zap.String("sql", sqlText), zap.Int("rows", len(rows)))
	return nil
}

func (sc *Scenario) execute(ctx context.Context, sqlText string, args ...any) error {
	conn, err := sc.conn()
	if err != nil {
		return err
	}
	sc.sentSQL(sqlText, args)
	ctx, cancel := bound(ctx, sc.env.Settings.Timeouts.Default())
	defer cancel()
	n, err := conn.Execute(ctx, sqlText, args...)
	record := sqlEvidence{Time: time.Now(), SQL: sqlText, Params: args, Error: errText(err)}
	if err != nil {
		sc.recordJSON("SQL update", record)
		return failure.Action(failure.Database, "update", err)
	}
	record.Affected = &n
	sc.recordJSON("SQL update", record)
	sc.last = response.FromAffected(n)
	sc.logger.Info("Update executed", zap.String("sql", sqlText), zap.Int64("affected", n))
	return nil
}

func (sc *Scenario) sentSQL(sqlText string, args []any) {
	if len(args) == 0 {
		sc.sent("%s", sqlText)
		return
	}
	sc.sent("%s %v", sqlText, args)
}

func dbRowCount(_ context.Context, sc *Scenario, c Call) error {
	n, err := strconv.Atoi(c.Args[0])
	if err != nil {
		return fmt.Errorf("row count %q is not a number", c.Args[0])
	}
	return expect.Evaluate(sc.last, expect.RowCountEquals{N: n})
}

func dbField(_ context.Context, sc *Scenario, c Call) error {
	row, err := strconv.Atoi(c.Args[0])
	if err != nil {
		return fmt.Errorf("row index %q is not a number", c.Args[0])
	}
	return expect.Evaluate(sc.last, expect.RowFieldEquals{Row: row, Column: c.Args[1], Expected: c.Args[2]})
}

func dbFirstField(_ context.Context, sc *Scenario, c Call) error {
	return expect.Evaluate(sc.last, expect.RowFieldEquals{Row: 0, Column: c.Args[0], Expected: c.Args[1]})
}

func dbColumn(_ context.Context, sc *Scenario, c Call) error {
	return expect.Evaluate(sc.last, expect.ColumnPresent{Column: c.Args[0]})
}

func dbAffected(_ context.Context, sc *Scenario, c Call) error {
	n, err := strconv.ParseInt(c.Args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("affected row count %q is not a number", c.Args[0])
	}
	return expect.Evaluate(sc.last, expect.AffectedRowsEquals{N: n})
}
