package facet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/mixmatch/internal/model"
	"github.com/hitoshi/mixmatch/internal/upstream"
)

// --- モック定義 ---

type mockLister struct {
	listFn func(ctx context.Context, kind model.FacetKind) ([]string, error)
}

func (m *mockLister) ListFacet(ctx context.Context, bearer string, kind model.FacetKind) ([]string, error) {
	return m.listFn(ctx, kind)
}

type mockMetrics struct {
	mu       sync.Mutex
	failures []string
}

func (m *mockMetrics) RecordFacetFailure(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, kind)
}

func newTestLoader(l Lister, mm *mockMetrics) *Loader {
	return NewLoader(l, mm, slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

// --- テスト ---

func TestLoad_AllSucceed(t *testing.T) {
	lister := &mockLister{listFn: func(ctx context.Context, kind model.FacetKind) ([]string, error) {
		switch kind {
		case model.FacetCategories:
			return []string{"Cocktail", "Shot"}, nil
		case model.FacetGlasses:
			return []string{"Highball glass"}, nil
		default:
			return []string{"Alcoholic", "Non alcoholic"}, nil
		}
	}}
	l := newTestLoader(lister, &mockMetrics{})

	vocab, err := l.Load(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(vocab.Categories) != 2 || len(vocab.Glasses) != 1 || len(vocab.Alcoholic) != 2 {
		t.Errorf("vocab = %+v", vocab)
	}
}

func TestLoad_GlassesFail_CategoriesStillPopulated(t *testing.T) {
	lister := &mockLister{listFn: func(ctx context.Context, kind model.FacetKind) ([]string, error) {
		if kind == model.FacetGlasses {
			return nil, errors.New("boom")
		}
		return []string{"Cocktail"}, nil
	}}
	mm := &mockMetrics{}
	l := newTestLoader(lister, mm)

	vocab, err := l.Load(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(vocab.Categories) != 1 || vocab.Categories[0] != "Cocktail" {
		t.Errorf("Categories = %v, want [Cocktail]", vocab.Categories)
	}
	if vocab.Glasses == nil || len(vocab.Glasses) != 0 {
		t.Errorf("Glasses = %#v, want empty non-nil slice", vocab.Glasses)
	}
	if len(mm.failures) != 1 || mm.failures[0] != "glasses" {
		t.Errorf("failures = %v, want [glasses]", mm.failures)
	}

	// 空配列は null ではなく [] として出力されること
	b, _ := json.Marshal(vocab)
	want := `{"categories":["Cocktail"],"glasses":[],"alcoholic":["Cocktail"]}`
	if string(b) != want {
		t.Errorf("json = %s, want %s", b, want)
	}
}

func TestLoad_SlowBranchDoesNotBlockOthersFromCompleting(t *testing.T) {
	var mu sync.Mutex
	done := map[model.FacetKind]bool{}
	lister := &mockLister{listFn: func(ctx context.Context, kind model.FacetKind) ([]string, error) {
		if kind == model.FacetAlcoholic {
			time.Sleep(30 * time.Millisecond)
			return nil, fmt.Errorf("slow failure: %w", context.DeadlineExceeded)
		}
		mu.Lock()
		done[kind] = true
		mu.Unlock()
		return []string{string(kind)}, nil
	}}
	l := newTestLoader(lister, &mockMetrics{})

	vocab, err := l.Load(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !done[model.FacetCategories] || !done[model.FacetGlasses] {
		t.Error("other branches should complete")
	}
	if len(vocab.Alcoholic) != 0 {
		t.Errorf("Alcoholic = %v, want empty", vocab.Alcoholic)
	}
}

func TestLoad_AllUnavailable_ReturnsError(t *testing.T) {
	lister := &mockLister{listFn: func(ctx context.Context, kind model.FacetKind) ([]string, error) {
		return nil, fmt.Errorf("%w: connection refused", upstream.ErrUnavailable)
	}}
	mm := &mockMetrics{}
	l := newTestLoader(lister, mm)

	_, err := l.Load(context.Background(), "tok")
	if !errors.Is(err, upstream.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if len(mm.failures) != 3 {
		t.Errorf("failures = %v, want 3 entries", mm.failures)
	}
}

func TestLoad_AllFailWithStatusErrors_DegradesToEmpty(t *testing.T) {
	lister := &mockLister{listFn: func(ctx context.Context, kind model.FacetKind) ([]string, error) {
		return nil, &model.UpstreamError{Status: 502, Detail: "Failed to fetch"}
	}}
	l := newTestLoader(lister, &mockMetrics{})

	vocab, err := l.Load(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(vocab.Categories)+len(vocab.Glasses)+len(vocab.Alcoholic) != 0 {
		t.Errorf("vocab = %+v, want all empty", vocab)
	}
}

func TestLoad_AllRejectedWithSameAuthStatus_ReturnsError(t *testing.T) {
	for _, status := range []int{401, 403} {
		lister := &mockLister{listFn: func(ctx context.Context, kind model.FacetKind) ([]string, error) {
			return nil, &model.UpstreamError{Status: status, Detail: "token expired"}
		}}
		l := newTestLoader(lister, &mockMetrics{})

		_, err := l.Load(context.Background(), "tok")
		var ue *model.UpstreamError
		if !errors.As(err, &ue) || ue.Status != status {
			t.Errorf("status %d: err = %v, want UpstreamError with the same status", status, err)
		}
	}
}

func TestLoad_PartialAuthRejection_DegradesToEmpty(t *testing.T) {
	tests := []struct {
		name   string
		listFn func(ctx context.Context, kind model.FacetKind) ([]string, error)
	}{
		{"one branch rejected", func(ctx context.Context, kind model.FacetKind) ([]string, error) {
			if kind == model.FacetGlasses {
				return nil, &model.UpstreamError{Status: 401, Detail: "token expired"}
			}
			return []string{"ok"}, nil
		}},
		{"mixed statuses", func(ctx context.Context, kind model.FacetKind) ([]string, error) {
			if kind == model.FacetGlasses {
				return nil, &model.UpstreamError{Status: 403, Detail: "forbidden"}
			}
			return nil, &model.UpstreamError{Status: 401, Detail: "token expired"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLoader(&mockLister{listFn: tt.listFn}, &mockMetrics{})
			vocab, err := l.Load(context.Background(), "tok")
			if err != nil {
				t.Fatalf("Load returned error: %v", err)
			}
			if len(vocab.Glasses) != 0 {
				t.Errorf("glasses = %v, want empty", vocab.Glasses)
			}
		})
	}
}

func TestLoad_RunsConcurrently(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(3)
	lister := &mockLister{listFn: func(ctx context.Context, kind model.FacetKind) ([]string, error) {
		wg.Done()
		// 3件すべてが同時に実行中でなければここで待ち続ける
		ch := make(chan struct{})
		go func() { wg.Wait(); close(ch) }()
		select {
		case <-ch:
			return []string{"ok"}, nil
		case <-time.After(2 * time.Second):
			return nil, errors.New("not concurrent")
		}
	}}
	l := newTestLoader(lister, &mockMetrics{})

	vocab, err := l.Load(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(vocab.Categories) != 1 || len(vocab.Glasses) != 1 || len(vocab.Alcoholic) != 1 {
		t.Errorf("vocab = %+v, want all populated", vocab)
	}
}
