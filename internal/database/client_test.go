package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/chriserin/gherkit/internal/config"
)

type ClientTestSuite struct {
	suite.Suite
	mockDB *sql.DB
	mock   sqlmock.Sqlmock
	client *Client
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (suite *ClientTestSuite) SetupTest() {
	var err error
	suite.mockDB, suite.mock, err = sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		suite.T().Fatalf("Failed to create mock database: %v", err)
	}
	suite.client = NewClient(suite.mockDB, "mock", zap.NewNop())
}

func (suite *ClientTestSuite) TearDownTest() {
	if err := suite.mock.ExpectationsWereMet(); err != nil {
		suite.T().Fatalf("There were unfulfilled expectations: %v", err)
	}
}

func (suite *ClientTestSuite) TestQuerySuccess() {
	rows := sqlmock.NewRows([]string{"ID", "Title"}).
		AddRow(42, []byte("hello")).
		AddRow(43, "world")
	suite.mock.ExpectQuery("SELECT id, title FROM posts WHERE user_id = ?").
		WithArgs(driver.Value("7")).
		WillReturnRows(rows)

	results, err := suite.client.Query(context.Background(), "SELECT id, title FROM posts WHERE user_id = ?", "7")

	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), results, 2)
	assert.Equal(suite.T(), int64(42), results[0]["id"])
	assert.Equal(suite.T(), "hello", results[0]["title"])
	assert.Equal(suite.T(), "world", results[1]["title"])
}

func (suite *ClientTestSuite) TestQueryEmptyResultsIsNotNil() {
	suite.mock.ExpectQuery("SELECT id FROM posts").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	results, err := suite.client.Query(context.Background(), "SELECT id FROM posts")

	assert.NoError(suite.T(), err)
	assert.NotNil(suite.T(), results)
	assert.Empty(suite.T(), results)
}

func (suite *ClientTestSuite) TestQueryDatabaseError() {
	expectedErr := errors.New("no such table: missing")
	suite.mock.ExpectQuery("SELECT * FROM missing").WillReturnError(expectedErr)

	results, err := suite.client.Query(context.Background(), "SELECT * FROM missing")

	assert.Equal(suite.T(), expectedErr, err)
	assert.Nil(suite.T(), results)
}

func (suite *ClientTestSuite) TestQueryRowError() {
	rows := sqlmock.NewRows([]string{"id"}).
		AddRow(1).
		RowError(0, errors.New("row failure"))
	suite.mock.ExpectQuery("SELECT id FROM posts").WillReturnRows(rows)

	_, err := suite.client.Query(context.Background(), "SELECT id FROM posts")

	assert.EqualError(suite.T(), err, "row failure")
}

func (suite *ClientTestSuite) TestExecuteSuccess() {
	suite.mock.ExpectExec("UPDATE posts SET title = ? WHERE id = ?").
		WithArgs("new", "42").
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := suite.client.Execute(context.Background(), "UPDATE posts SET title = ? WHERE id = ?", "new", "42")

	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), affected)
}

func (suite *ClientTestSuite) TestExecuteError() {
	expectedErr := errors.New("constraint failed")
	suite.mock.ExpectExec("DELETE FROM posts").WillReturnError(expectedErr)

	affected, err := suite.client.Execute(context.Background(), "DELETE FROM posts")

	assert.Equal(suite.T(), expectedErr, err)
	assert.Equal(suite.T(), int64(0), affected)
}

func (suite *ClientTestSuite) TestClose() {
	suite.mock.ExpectClose()
	assert.NoError(suite.T(), suite.client.Close())
}

func TestOpen_SQLiteFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "blog.db")
	c, err := Open(ctx, config.Database{Type: "sqlite", Name: path}, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, "sqlite", c.Driver())

	_, err = c.Execute(ctx, `CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT NOT NULL)`)
	require.NoError(t, err)
	n, err := c.Execute(ctx, `INSERT INTO posts (id, title) VALUES (42, 'hello'), (43, 'world')`)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rows, err := c.Query(ctx, `SELECT id, title FROM posts WHERE id = ?`, "42")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(42), rows[0]["id"])
	assert.Equal(t, "hello", rows[0]["title"])
}

func TestOpen_SQLiteMemoryKeepsState(t *testing.T) {
	ctx := context.Background()
	c, err := Open(ctx, config.Database{Type: "sqlite3"}, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Execute(ctx, `CREATE TABLE t (v TEXT)`)
	require.NoError(t, err)
	_, err = c.Execute(ctx, `INSERT INTO t VALUES ('x')`)
	require.NoError(t, err)
	rows, err := c.Query(ctx, `SELECT v FROM t`)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestOpen_UnsupportedType(t *testing.T) {
	_, err := Open(context.Background(), config.Database{Type: "mysql"}, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported database type")
}

func TestDSN(t *testing.T) {
	assert.Equal(t, ":memory:", DSN("sqlite", config.Database{}))
	assert.Equal(t, "app.db", DSN("sqlite", config.Database{Name: "app.db"}))
	assert.Equal(t, "postgres://app:s%40cret@db:5433/blog?sslmode=disable",
		DSN("postgres", config.Database{Host: "db", Port: 5433, User: "app", Password: "s@cret", Name: "blog"}))
	assert.Equal(t, "postgres://localhost/blog?sslmode=require",
		DSN("postgres", config.Database{Name: "blog", SSLMode: "require"}))
	assert.Equal(t, "custom", DSN("postgres", config.Database{DSN: "custom", Host: "ignored"}))
}

func TestSplitParams(t *testing.T) {
	assert.Nil(t, SplitParams(""))
	assert.Nil(t, SplitParams(" None "))
	assert.Equal(t, []any{"42", "hello world"}, SplitParams("42, hello world"))
}
