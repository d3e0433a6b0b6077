package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/corolair/moodle-bridge/internal/core/domain"
)

func TestPostgresRepository_Unit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)
	ctx := context.Background()

	t.Run("GetPluginConfig", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"value"}).AddRow("key-123")
		mock.ExpectQuery(`SELECT value FROM mdl_config_plugins WHERE plugin = \$1 AND name = \$2`).
			WithArgs(pluginName, "apikey").
			WillReturnRows(rows)

		value, err := repo.GetPluginConfig(ctx, "apikey")
		if err != nil {
			t.Errorf("GetPluginConfig failed: %v", err)
		}
		if value != "key-123" {
			t.Errorf("unexpected value: %q", value)
		}
	})

	t.Run("GetPluginConfig missing row", func(t *testing.T) {
		mock.ExpectQuery(`SELECT value FROM mdl_config_plugins`).
			WithArgs(pluginName, "apikey").
			WillReturnRows(sqlmock.NewRows([]string{"value"}))

		value, err := repo.GetPluginConfig(ctx, "apikey")
		if err != nil {
			t.Errorf("GetPluginConfig failed: %v", err)
		}
		if value != "" {
			t.Errorf("expected empty value, got %q", value)
		}
	})

	t.Run("SetPluginConfig upserts", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO mdl_config_plugins`).
			WithArgs(pluginName, "apikey", "key-456").
			WillReturnResult(sqlmock.NewResult(1, 1))

		if err := repo.SetPluginConfig(ctx, "apikey", "key-456"); err != nil {
			t.Errorf("SetPluginConfig failed: %v", err)
		}
	})

	t.Run("GetService", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "name", "shortname", "enabled", "restrictedusers", "uploadfiles", "downloadfiles", "timecreated", "timemodified"}).
			AddRow(3, domain.ServiceName, domain.ServiceShortname, 1, 0, 1, 1, 1700000000, 1700000000)
		mock.ExpectQuery(`SELECT (.+) FROM mdl_external_services WHERE shortname = \$1`).
			WithArgs(domain.ServiceShortname).
			WillReturnRows(rows)

		svc, err := repo.GetService(ctx, domain.ServiceShortname)
		if err != nil {
			t.Errorf("GetService failed: %v", err)
		}
		if svc == nil || svc.ID != 3 || !svc.Enabled {
			t.Errorf("unexpected service: %+v", svc)
		}
	})

	t.Run("GetService missing row", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM mdl_external_services`).
			WithArgs(domain.ServiceShortname).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		svc, err := repo.GetService(ctx, domain.ServiceShortname)
		if err != nil {
			t.Errorf("GetService failed: %v", err)
		}
		if svc != nil {
			t.Errorf("expected nil service, got %+v", svc)
		}
	})

	t.Run("CreateService returns id", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO mdl_external_services`).
			WithArgs(domain.ServiceName, domain.ServiceShortname, 1, 0, 1, 1, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

		now := time.Now()
		id, err := repo.CreateService(ctx, &domain.ExternalService{
			Name:          domain.ServiceName,
			Shortname:     domain.ServiceShortname,
			Enabled:       true,
			UploadFiles:   true,
			DownloadFiles: true,
			TimeCreated:   now,
			TimeModified:  now,
		})
		if err != nil {
			t.Errorf("CreateService failed: %v", err)
		}
		if id != 7 {
			t.Errorf("unexpected id: %d", id)
		}
	})

	t.Run("CreateToken", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO mdl_external_tokens`).
			WithArgs("tok", "priv", int64(2), int64(7), int64(1), int64(2), domain.TokenName, int64(0), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

		id, err := repo.CreateToken(ctx, &domain.ServiceToken{
			Token:        "tok",
			PrivateToken: "priv",
			UserID:       2,
			CreatorID:    2,
			ContextID:    1,
			ServiceID:    7,
			TimeCreated:  time.Now(),
		})
		if err != nil {
			t.Errorf("CreateToken failed: %v", err)
		}
		if id != 11 {
			t.Errorf("unexpected id: %d", id)
		}
	})

	t.Run("HasCapability", func(t *testing.T) {
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(int64(42), domain.CapabilityCreateTutor, capAllow).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		allowed, err := repo.HasCapability(ctx, 42, domain.CapabilityCreateTutor)
		if err != nil {
			t.Errorf("HasCapability failed: %v", err)
		}
		if !allowed {
			t.Error("expected capability to be allowed")
		}
	})

	t.Run("UserRoleInCourse missing assignment", func(t *testing.T) {
		mock.ExpectQuery(`SELECT ro.shortname FROM mdl_role_assignments`).
			WithArgs(int64(42), int(domain.ContextCourse), int64(12)).
			WillReturnRows(sqlmock.NewRows([]string{"shortname"}))

		role, err := repo.UserRoleInCourse(ctx, 42, 12)
		if err != nil {
			t.Errorf("UserRoleInCourse failed: %v", err)
		}
		if role != "" {
			t.Errorf("expected empty role, got %q", role)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
