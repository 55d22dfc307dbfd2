package repository

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/makeit-app/render-orchestrator/entity"
)

// openTestDB gives each test an isolated in-memory database with the schema
// migrated. The JSON render-slot queries work the same on SQLite's json_extract
// as on Postgres jsonb, which is what makes these tests meaningful.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&entity.User{}, &entity.GenerationJob{}))
	return db
}
