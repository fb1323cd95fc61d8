package catalog

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/nhle/content-portal/internal/model"
	"github.com/nhle/content-portal/internal/querycache"
)

// API is the subset of the portal client used for articles and jobs.
type API interface {
	ListArticles(ctx context.Context, filters map[string]string, cursor *string) (model.Page[model.Article], error)
	AdminArticles(ctx context.Context, filters map[string]string) ([]model.Article, error)
	Article(ctx context.Context, id model.ID) (*model.Article, error)
	CreateArticle(ctx context.Context, payload interface{}) (*model.Article, error)
	UpdateArticle(ctx context.Context, id model.ID, payload interface{}) (*model.Article, error)
	DeleteArticle(ctx context.Context, id model.ID) error
	PublishArticle(ctx context.Context, id model.ID, payload interface{}) error
	MoveArticleToReview(ctx context.Context, id model.ID) error

	ListJobs(ctx context.Context, filters map[string]string, cursor *string) (model.Page[model.Job], error)
	JobFilterOptions(ctx context.Context) (*model.JobFilterOptions, error)
	Job(ctx context.Context, slug string) (*model.Job, error)
	CreateJob(ctx context.Context, payload interface{}) (*model.Job, error)
	UpdateJob(ctx context.Context, id model.ID, payload interface{}) (*model.Job, error)
	SetJobActive(ctx context.Context, id model.ID, active bool) error
}

// jobFiltersKey caches the facet counts of the jobs sidebar.
var jobFiltersKey = querycache.Jobs.Sub("filters")

// Catalog reads articles and jobs through the query cache and keeps it
// consistent after CMS mutations.
type Catalog struct {
	api    API
	cache  *querycache.Cache
	logger *log.Logger
}

// New creates a catalog over client and cache.
func New(client API, cache *querycache.Cache, logger *log.Logger) *Catalog {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Catalog{api: client, cache: cache, logger: logger}
}

// ArticlePages is the page source for article list views.
func (c *Catalog) ArticlePages(ctx context.Context, filters map[string]string, cursor *string) (model.Page[model.Article], error) {
	return c.api.ListArticles(ctx, filters, cursor)
}

// JobPages is the page source for job list views.
func (c *Catalog) JobPages(ctx context.Context, filters map[string]string, cursor *string) (model.Page[model.Job], error) {
	return c.api.ListJobs(ctx, filters, cursor)
}

// Article returns one article.
func (c *Catalog) Article(ctx context.Context, id model.ID) (*model.Article, error) {
	return querycache.Fetch(ctx, c.cache, querycache.Articles.Detail(id.String()), func(ctx context.Context) (*model.Article, error) {
		return c.api.Article(ctx, id)
	})
}

// AdminArticles returns the CMS article list for filters.
func (c *Catalog) AdminArticles(ctx context.Context, filters map[string]string) ([]model.Article, error) {
	return querycache.Fetch(ctx, c.cache, querycache.Articles.AdminList(filters), func(ctx context.Context) ([]model.Article, error) {
		return c.api.AdminArticles(ctx, filters)
	})
}

// Job returns one job by slug.
func (c *Catalog) Job(ctx context.Context, slug string) (*model.Job, error) {
	return querycache.Fetch(ctx, c.cache, querycache.Jobs.Detail(slug), func(ctx context.Context) (*model.Job, error) {
		return c.api.Job(ctx, slug)
	})
}

// JobFilterOptions returns the jobs sidebar facets.
func (c *Catalog) JobFilterOptions(ctx context.Context) (*model.JobFilterOptions, error) {
	return querycache.Fetch(ctx, c.cache, jobFiltersKey, c.api.JobFilterOptions)
}

// CreateArticle creates an article and drops every cached article list.
func (c *Catalog) CreateArticle(ctx context.Context, payload interface{}) (*model.Article, error) {
	a, err := c.api.CreateArticle(ctx, payload)
	if err != nil {
		return nil, err
	}
	c.invalidate(querycache.Articles.MutationTargets(""), "create article", a.ID)
	return a, nil
}

// UpdateArticle updates an article and drops the lists and its detail.
func (c *Catalog) UpdateArticle(ctx context.Context, id model.ID, payload interface{}) (*model.Article, error) {
	a, err := c.api.UpdateArticle(ctx, id, payload)
	if err != nil {
		return nil, err
	}
	c.invalidate(querycache.Articles.MutationTargets(id.String()), "update article", id)
	return a, nil
}

// DeleteArticle deletes an article.
func (c *Catalog) DeleteArticle(ctx context.Context, id model.ID) error {
	if err := c.api.DeleteArticle(ctx, id); err != nil {
		return err
	}
	c.invalidate(querycache.Articles.MutationTargets(id.String()), "delete article", id)
	return nil
}

// PublishArticle publishes an article.
func (c *Catalog) PublishArticle(ctx context.Context, id model.ID, payload interface{}) error {
	if err := c.api.PublishArticle(ctx, id, payload); err != nil {
		return err
	}
	c.invalidate(querycache.Articles.MutationTargets(id.String()), "publish article", id)
	return nil
}

// MoveArticleToReview sends an article to review.
func (c *Catalog) MoveArticleToReview(ctx context.Context, id model.ID) error {
	if err := c.api.MoveArticleToReview(ctx, id); err != nil {
		return err
	}
	c.invalidate(querycache.Articles.MutationTargets(id.String()), "review article", id)
	return nil
}

// jobTargets covers the job lists, the facet counts and every job
// detail. Details are cached by slug, which a mutation by id cannot name.
func jobTargets() querycache.Predicate {
	return querycache.Any(
		querycache.Jobs.MutationTargets(""),
		querycache.Exact(jobFiltersKey),
		querycache.Prefix(querycache.Jobs.Details()),
	)
}

// CreateJob creates a job posting.
func (c *Catalog) CreateJob(ctx context.Context, payload interface{}) (*model.Job, error) {
	j, err := c.api.CreateJob(ctx, payload)
	if err != nil {
		return nil, err
	}
	c.invalidate(querycache.Any(querycache.Jobs.MutationTargets(""), querycache.Exact(jobFiltersKey)), "create job", j.ID)
	return j, nil
}

// UpdateJob updates a job posting.
func (c *Catalog) UpdateJob(ctx context.Context, id model.ID, payload interface{}) (*model.Job, error) {
	j, err := c.api.UpdateJob(ctx, id, payload)
	if err != nil {
		return nil, err
	}
	c.invalidate(jobTargets(), "update job", id)
	return j, nil
}

// SetJobActive activates or deactivates a job posting.
func (c *Catalog) SetJobActive(ctx context.Context, id model.ID, active bool) error {
	if err := c.api.SetJobActive(ctx, id, active); err != nil {
		return err
	}
	c.invalidate(jobTargets(), "toggle job", id)
	return nil
}

func (c *Catalog) invalidate(pred querycache.Predicate, op string, id model.ID) {
	n := c.cache.Invalidate(pred)
	c.logger.WithFields(log.Fields{"op": op, "id": id, "invalidated": n}).Debug("cache invalidated after mutation")
}
