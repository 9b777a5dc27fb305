package database_test

import (
	"path/filepath"
	"testing"

	"fleetops/internal/database"
	"fleetops/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestConfig_LogsThroughLogrus(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "db.sqlite")), database.Config(log))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	hook.Reset()

	var role model.Role
	err = db.Where("name = ?", "nobody").First(&role).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Empty(t, hook.AllEntries())

	err = db.Exec("SELECT * FROM missing_table").Error
	require.Error(t, err)
	require.NotEmpty(t, hook.AllEntries())
	assert.Equal(t, "gorm", hook.LastEntry().Data["component"])
}
