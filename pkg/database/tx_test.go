package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type counter struct {
	ID    uint
	Value int
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:tx_test?mode=memory&cache=shared"), Config("silent"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrator().DropTable(&counter{}))
	require.NoError(t, db.AutoMigrate(&counter{}))
	return db
}

func TestWithinTransactionCommitsAndRollsBack(t *testing.T) {
	db := openTestDB(t)
	tr := NewTransactor(db)
	ctx := context.Background()

	require.NoError(t, tr.WithinTransaction(ctx, func(ctx context.Context) error {
		assert.True(t, InTransaction(ctx))
		if err := Conn(ctx, db).Create(&counter{Value: 1}).Error; err != nil {
			return err
		}
		var locked counter
		return ForUpdate(Conn(ctx, db)).First(&locked).Error
	}))

	boom := errors.New("boom")
	err := tr.WithinTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, Conn(ctx, db).Create(&counter{Value: 2}).Error)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, db.Model(&counter{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
	assert.False(t, InTransaction(ctx))
}

func TestWithinTransactionNests(t *testing.T) {
	db := openTestDB(t)
	tr := NewTransactor(db)

	err := tr.WithinTransaction(context.Background(), func(ctx context.Context) error {
		outer := Conn(ctx, db)
		return tr.WithinTransaction(ctx, func(inner context.Context) error {
			assert.Same(t, outer, Conn(inner, db))
			return Conn(inner, db).Create(&counter{Value: 3}).Error
		})
	})
	require.NoError(t, err)

	var c counter
	require.NoError(t, db.First(&c).Error)
	assert.Equal(t, 3, c.Value)
}
