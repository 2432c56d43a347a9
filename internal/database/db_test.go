package database

import (
	"path/filepath"
	"testing"

	"github.com/fyerfyer/doc-quiz-system/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "quiz.db")
	db, err := Open(&Config{Type: "sqlite", DSN: dsn}, logrus.New())
	require.NoError(t, err)

	assert.True(t, db.Migrator().HasTable(&models.Document{}))
	assert.True(t, db.Migrator().HasTable(&models.DocumentSegment{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func TestOpenUnsupportedType(t *testing.T) {
	_, err := Open(&Config{Type: "oracle", DSN: "x"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")
}

func TestSetupAndClose(t *testing.T) {
	old := DB
	defer func() { DB = old }()

	dsn := filepath.Join(t.TempDir(), "quiz.db")
	require.NoError(t, Setup(&Config{Type: "sqlite", DSN: dsn}, logrus.New()))
	assert.NotNil(t, MustDB())
	require.NoError(t, Close())
}

func TestMustDBPanics(t *testing.T) {
	old := DB
	DB = nil
	defer func() { DB = old }()

	assert.Panics(t, func() { MustDB() })
}
