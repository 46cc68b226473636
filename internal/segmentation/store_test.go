package segmentation

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/crm-engine/internal/domain"
)

var segmentCols = []string{"id", "organization_id", "name", "description", "rules", "match_type",
	"color", "member_count", "is_active", "created_at", "updated_at"}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestStore_CreateSegment(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO segments`).
		WithArgs("seg-1", "org-1", "Hot", "", []byte(`[{"field":"score","operator":"greater_than","value":75}]`),
			"all", "#f00", 4, true, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.CreateSegment(context.Background(), &domain.Segment{
		ID: "seg-1", OrganizationID: "org-1", Name: "Hot", MatchType: domain.MatchAll, Color: "#f00",
		Rules:       []domain.Rule{{Field: "score", Operator: "greater_than", Value: 75}},
		MemberCount: 4, IsActive: true, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateSegment_NilRulesStoredAsEmptyList(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO segments`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), []byte(`[]`),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.CreateSegment(context.Background(), &domain.Segment{ID: "seg-1"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetSegment(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM segments WHERE id = \$1 AND organization_id = \$2`).
		WithArgs("seg-1", "org-1").
		WillReturnRows(sqlmock.NewRows(segmentCols).AddRow(
			"seg-1", "org-1", "Stale", "old leads", []byte(`[{"field":"createdAt","operator":"daysAgo","value":30}]`),
			"any", "", 12, true, now, now))

	seg, err := store.GetSegment(context.Background(), "org-1", "seg-1")
	require.NoError(t, err)
	assert.Equal(t, "Stale", seg.Name)
	assert.Equal(t, domain.MatchAny, seg.MatchType)
	assert.Equal(t, 12, seg.MemberCount)
	require.Len(t, seg.Rules, 1)
	assert.Equal(t, "daysAgo", seg.Rules[0].Operator)
	assert.Equal(t, 30.0, seg.Rules[0].Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetSegment_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM segments`).
		WithArgs("missing", "org-1").
		WillReturnRows(sqlmock.NewRows(segmentCols))

	_, err := store.GetSegment(context.Background(), "org-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetSegment_CorruptRules(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`FROM segments`).
		WillReturnRows(sqlmock.NewRows(segmentCols).AddRow(
			"seg-1", "org-1", "Bad", "", []byte(`{not json`), "all", "", 0, true, now, now))

	_, err := store.GetSegment(context.Background(), "org-1", "seg-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestStore_ListSegments(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`FROM segments WHERE organization_id = \$1 AND is_active = TRUE ORDER BY created_at DESC`).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows(segmentCols).
			AddRow("seg-2", "org-1", "B", "", []byte(`[]`), "all", "", 0, true, now, now).
			AddRow("seg-1", "org-1", "A", "", nil, "any", "", 3, true, now, now))

	segments, err := store.ListSegments(context.Background(), "org-1", true)
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, "seg-2", segments[0].ID)
	assert.Empty(t, segments[1].Rules)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateSegment(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectExec(`UPDATE segments SET name = \$3`).
		WithArgs("seg-1", "org-1", "Renamed", "", []byte(`[]`), "any", "", 7, false, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE segments SET name = \$3`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	seg := &domain.Segment{ID: "seg-1", OrganizationID: "org-1", Name: "Renamed",
		Rules: []domain.Rule{}, MatchType: domain.MatchAny, MemberCount: 7, UpdatedAt: now}
	require.NoError(t, store.UpdateSegment(context.Background(), seg))

	seg.OrganizationID = "org-2"
	assert.ErrorIs(t, store.UpdateSegment(context.Background(), seg), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateMemberCount(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE segments SET member_count = \$2`).
		WithArgs("seg-1", 42).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.UpdateMemberCount(context.Background(), "seg-1", 42))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteSegment(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM segments WHERE id = \$1 AND organization_id = \$2`).
		WithArgs("seg-1", "org-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM segments`).
		WithArgs("seg-1", "org-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.DeleteSegment(context.Background(), "org-1", "seg-1"))
	assert.ErrorIs(t, store.DeleteSegment(context.Background(), "org-1", "seg-1"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
