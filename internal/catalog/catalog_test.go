package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/nhle/content-portal/internal/logging"
	"github.com/nhle/content-portal/internal/model"
	"github.com/nhle/content-portal/internal/querycache"
)

// fakeAPI embeds API so tests only implement what they call.
type fakeAPI struct {
	API

	mu         sync.Mutex
	jobCalls   int
	articleErr error
	toggled    map[model.ID]bool
}

func (f *fakeAPI) Job(_ context.Context, slug string) (*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobCalls++
	return &model.Job{ID: "1", Slug: slug, Title: gofakeit.JobTitle()}, nil
}

func (f *fakeAPI) SetJobActive(_ context.Context, id model.ID, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.toggled == nil {
		f.toggled = map[model.ID]bool{}
	}
	f.toggled[id] = active
	return nil
}

func (f *fakeAPI) UpdateArticle(_ context.Context, id model.ID, _ interface{}) (*model.Article, error) {
	if f.articleErr != nil {
		return nil, f.articleErr
	}
	return &model.Article{ID: id}, nil
}

func newCatalog(f *fakeAPI) (*Catalog, *querycache.Cache) {
	cache := querycache.New(50, querycache.WithLogger(logging.Discard()))
	return New(f, cache, logging.Discard()), cache
}

func TestJobDetailIsCached(t *testing.T) {
	f := &fakeAPI{}
	c, _ := newCatalog(f)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		j, err := c.Job(ctx, "clerk-2024")
		if err != nil {
			t.Fatalf("Job: %v", err)
		}
		if j.Slug != "clerk-2024" {
			t.Errorf("Slug = %q", j.Slug)
		}
	}
	if f.jobCalls != 1 {
		t.Errorf("server calls = %d, want 1", f.jobCalls)
	}
}

func TestJobMutationInvalidatesJobsOnly(t *testing.T) {
	f := &fakeAPI{}
	c, cache := newCatalog(f)
	ctx := context.Background()

	c.Job(ctx, "clerk-2024")
	cache.Set(querycache.Jobs.PublicList(map[string]string{"job_type": "GOVT"}), "page", time.Minute)
	cache.Set(jobFiltersKey, "facets", time.Minute)
	cache.Set(querycache.Articles.PublicList(nil), "articles", time.Minute)

	if err := c.SetJobActive(ctx, "1", false); err != nil {
		t.Fatalf("SetJobActive: %v", err)
	}
	if f.toggled["1"] {
		t.Error("job not deactivated")
	}
	if cache.Len() != 1 {
		t.Errorf("cache entries = %d, want only the article list", cache.Len())
	}
	if _, ok := cache.Get(querycache.Articles.PublicList(nil)); !ok {
		t.Error("article list invalidated by a job mutation")
	}

	c.Job(ctx, "clerk-2024")
	if f.jobCalls != 2 {
		t.Errorf("detail not refetched after mutation")
	}
}

func TestArticleMutationFailureKeepsCache(t *testing.T) {
	f := &fakeAPI{articleErr: errors.New("conflict")}
	c, cache := newCatalog(f)
	cache.Set(querycache.Articles.Detail("4"), "article", time.Minute)
	cache.Set(querycache.Articles.PublicList(nil), "page", time.Minute)

	if _, err := c.UpdateArticle(context.Background(), "4", map[string]string{"title": "x"}); err == nil {
		t.Fatal("UpdateArticle succeeded")
	}
	if cache.Len() != 2 {
		t.Errorf("failed mutation invalidated entries")
	}

	f.articleErr = nil
	if _, err := c.UpdateArticle(context.Background(), "4", nil); err != nil {
		t.Fatalf("UpdateArticle: %v", err)
	}
	if cache.Len() != 0 {
		t.Errorf("cache entries = %d after update", cache.Len())
	}
}
