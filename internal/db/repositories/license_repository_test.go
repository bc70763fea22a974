package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/community-hub/backend/internal/db/models"
)

var planCols = []string{"id", "name", "description", "max_members", "price_cents", "features", "created_at"}

var orgLicenseCols = []string{
	"id", "organization_id", "license_id", "status", "starts_at", "ends_at",
	"expiry_warned_at", "created_at", "updated_at", "license_name", "features",
}

func newLicenseRepo(t *testing.T) (*LicenseRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewLicenseRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestListPlans(t *testing.T) {
	repo, mock := newLicenseRepo(t)
	mock.ExpectQuery("SELECT .* FROM licenses ORDER BY").
		WillReturnRows(sqlmock.NewRows(planCols).
			AddRow("lic-1", "starter", nil, 50, 0, []byte("{posts,events}"), time.Now()))

	plans, err := repo.ListPlans(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plans) != 1 {
		t.Fatalf("len = %d, want 1", len(plans))
	}
	if !plans[0].HasFeature("events") {
		t.Errorf("Features = %v, want events included", plans[0].Features)
	}
}

func TestGetPlanByName_NotFound(t *testing.T) {
	repo, mock := newLicenseRepo(t)
	mock.ExpectQuery("SELECT .* FROM licenses WHERE name").
		WithArgs("gold").
		WillReturnRows(sqlmock.NewRows(planCols))

	plan, err := repo.GetPlanByName(context.Background(), "gold")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan != nil {
		t.Errorf("expected nil, got %+v", plan)
	}
}

func TestGetCurrentForOrganization(t *testing.T) {
	repo, mock := newLicenseRepo(t)
	now := time.Now()
	ends := now.Add(time.Hour)
	mock.ExpectQuery("FROM organization_licenses ol.*JOIN licenses l.*WHERE ol.organization_id").
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows(orgLicenseCols).
			AddRow("ol-1", "org-1", "lic-1", "trial", now.Add(-time.Hour), ends, nil, now, now, "starter", []byte("{posts}")))

	lic, err := repo.GetCurrentForOrganization(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lic == nil {
		t.Fatal("expected license, got nil")
	}
	if lic.Status != models.LicenseStatusTrial || lic.LicenseName != "starter" {
		t.Errorf("unexpected license %+v", lic)
	}
	if !lic.IsActiveAt(now) {
		t.Error("expected license to be active now")
	}
}

func TestGetCurrentForOrganization_None(t *testing.T) {
	repo, mock := newLicenseRepo(t)
	mock.ExpectQuery("FROM organization_licenses").
		WillReturnRows(sqlmock.NewRows(orgLicenseCols))

	lic, err := repo.GetCurrentForOrganization(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lic != nil {
		t.Errorf("expected nil, got %+v", lic)
	}
}

func TestAssign_CancelsPreviousAndInserts(t *testing.T) {
	repo, mock := newLicenseRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE organization_licenses SET status = 'cancelled'").
		WithArgs("org-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO organization_licenses").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	ol := &models.OrganizationLicense{OrganizationID: "org-1", LicenseID: "lic-2", Status: models.LicenseStatusActive, StartsAt: time.Now()}
	if err := repo.Assign(context.Background(), ol); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ol.ID == "" {
		t.Error("expected ID to be assigned")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestExpireLapsed(t *testing.T) {
	repo, mock := newLicenseRepo(t)
	now := time.Now()
	past := now.Add(-time.Hour)
	mock.ExpectQuery("WITH lapsed AS \\(\\s*UPDATE organization_licenses SET status = 'expired'").
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows(orgLicenseCols).
			AddRow("ol-1", "org-1", "lic-1", "expired", past.Add(-time.Hour), past, nil, now, now, "starter", []byte("{}")))

	expired, err := repo.ExpireLapsed(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(expired) != 1 || expired[0].OrganizationID != "org-1" {
		t.Errorf("unexpected result %+v", expired)
	}
}

func TestCreatePlan(t *testing.T) {
	repo, mock := newLicenseRepo(t)
	mock.ExpectExec("INSERT INTO licenses").WillReturnResult(sqlmock.NewResult(1, 1))

	l := &models.License{Name: "gold", PriceCents: 999, Features: pq.StringArray{"posts"}}
	if err := repo.CreatePlan(context.Background(), l); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.ID == "" {
		t.Error("expected ID to be assigned")
	}
}
