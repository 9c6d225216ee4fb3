// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/database"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/models"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// OpenDB returns a migrated in-memory SQLite database private to t.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=on", name, dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Discard,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateUser inserts a user with a throwaway password hash.
func CreateUser(t testing.TB, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{
		ID:       uuid.New(),
		Email:    email,
		Password: "x",
		FullName: "Test User",
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// CreateForm inserts an enabled form owned by owner.
func CreateForm(t testing.TB, db *gorm.DB, owner *models.User, name string) *models.FormDefinition {
	t.Helper()
	form := &models.FormDefinition{Name: name, Enabled: true, OwnerID: owner.ID}
	if err := db.Create(form).Error; err != nil {
		t.Fatalf("create form: %v", err)
	}
	return form
}

// CreateSettings inserts a notification settings row for form.
func CreateSettings(t testing.TB, db *gorm.DB, form *models.FormDefinition, channel string, enabled bool, target string) *models.NotificationSettings {
	t.Helper()
	s := &models.NotificationSettings{FormID: form.ID, Type: channel, Enabled: enabled}
	if target != "" {
		s.Target = &target
	}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("create settings: %v", err)
	}
	return s
}

func Ptr[T any](v T) *T { return &v }
