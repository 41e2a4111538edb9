package ledger

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hitoshi/mixmatch/internal/model"
)

// PostgresStoreはStoreインターフェースを満たすことを検証
func TestPostgresStore_ImplementsInterface(t *testing.T) {
	var _ Store = (*PostgresStore)(nil)
}

func TestPostgresStore_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO judgments")).
		WithArgs("e1", "u1", "11007", "like", "tinder", created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPostgresStore(db)
	err = store.Append(context.Background(), &model.JudgmentEvent{
		ID: "e1", UserID: "u1", CocktailID: "11007",
		Action: model.ActionLike, Source: model.SourceTinder, CreatedAt: created,
	})
	if err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStore_Append_WrapsError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	dbErr := errors.New("connection reset")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO judgments")).WillReturnError(dbErr)

	err = NewPostgresStore(db).Append(context.Background(), &model.JudgmentEvent{ID: "e1"})
	if !errors.Is(err, dbErr) {
		t.Errorf("err = %v, want wrapped %v", err, dbErr)
	}
}

func TestPostgresStore_QueryFiltered_CombinesFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	t1 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "user_id", "cocktail_id", "action", "source", "created_at"}).
		AddRow("e2", "u1", "11007", "like", "search", t1)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 AND action = $2 AND source = $3")).
		WithArgs("u1", "like", "search").
		WillReturnRows(rows)

	events, err := NewPostgresStore(db).QueryFiltered(context.Background(), "u1", Filter{Action: model.ActionLike, Source: model.SourceSearch})
	if err != nil {
		t.Fatalf("QueryFiltered returned error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	e := events[0]
	if e.ID != "e2" || e.Action != model.ActionLike || e.Source != model.SourceSearch || !e.CreatedAt.Equal(t1) {
		t.Errorf("event = %+v", e)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStore_QueryFiltered_EmptyResultIsNonNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM judgments")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "cocktail_id", "action", "source", "created_at"}))

	events, err := NewPostgresStore(db).QueryFiltered(context.Background(), "u1", Filter{})
	if err != nil {
		t.Fatalf("QueryFiltered returned error: %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Errorf("events = %#v, want empty non-nil slice", events)
	}
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		filter   Filter
		wantCond string
		wantArgs int
	}{
		{"no filter", Filter{}, "WHERE user_id = $1\n", 1},
		{"action only", Filter{Action: model.ActionDislike}, "user_id = $1 AND action = $2\n", 2},
		{"source only", Filter{Source: model.SourceSearch}, "user_id = $1 AND source = $2\n", 2},
		{"both", Filter{Action: model.ActionLike, Source: model.SourceTinder}, "action = $2 AND source = $3", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildQuery("u1", tt.filter)
			if !strings.Contains(query, tt.wantCond) {
				t.Errorf("query %q does not contain %q", query, tt.wantCond)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("len(args) = %d, want %d", len(args), tt.wantArgs)
			}
			if !strings.Contains(query, "ORDER BY created_at DESC, seq DESC") {
				t.Error("query should order newest first")
			}
		})
	}
}
