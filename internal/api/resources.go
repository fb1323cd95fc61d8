package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/nhle/content-portal/internal/model"
)

// getRaw performs a GET and returns the undecoded body for an adapter.
func (c *Client) getRaw(ctx context.Context, path string, query url.Values) ([]byte, error) {
	var raw json.RawMessage
	if err := c.Get(ctx, path, query, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// filterQuery converts list filters to query parameters, dropping empty
// values, and appends the cursor when present.
func filterQuery(filters map[string]string, cursor *string) url.Values {
	q := url.Values{}
	for k, v := range filters {
		if v != "" {
			q.Set(k, v)
		}
	}
	if cursor != nil && *cursor != "" {
		q.Set("cursor", *cursor)
	}
	return q
}

// ListArticles fetches one page of the public article list.
func (c *Client) ListArticles(ctx context.Context, filters map[string]string, cursor *string) (model.Page[model.Article], error) {
	raw, err := c.getRaw(ctx, "news/", filterQuery(filters, cursor))
	if err != nil {
		return model.Page[model.Article]{}, fmt.Errorf("listing articles: %w", err)
	}
	return DecodePage[model.Article](raw)
}

// AdminArticles fetches the CMS article list.
func (c *Client) AdminArticles(ctx context.Context, filters map[string]string) ([]model.Article, error) {
	raw, err := c.getRaw(ctx, "cms/articles/", filterQuery(filters, nil))
	if err != nil {
		return nil, fmt.Errorf("listing cms articles: %w", err)
	}
	return DecodeArticles(raw)
}

// Article fetches a single article by id.
func (c *Client) Article(ctx context.Context, id model.ID) (*model.Article, error) {
	var a model.Article
	if err := c.Get(ctx, "cms/articles/"+url.PathEscape(id.String())+"/", nil, &a); err != nil {
		return nil, fmt.Errorf("getting article %s: %w", id, err)
	}
	return &a, nil
}

// CreateArticle creates an article from payload.
func (c *Client) CreateArticle(ctx context.Context, payload interface{}) (*model.Article, error) {
	var a model.Article
	if err := c.Post(ctx, "cms/articles/", nil, payload, &a); err != nil {
		return nil, fmt.Errorf("creating article: %w", err)
	}
	return &a, nil
}

// UpdateArticle applies a partial update.
func (c *Client) UpdateArticle(ctx context.Context, id model.ID, payload interface{}) (*model.Article, error) {
	var a model.Article
	if err := c.Patch(ctx, "cms/articles/"+url.PathEscape(id.String())+"/", payload, &a); err != nil {
		return nil, fmt.Errorf("updating article %s: %w", id, err)
	}
	return &a, nil
}

// DeleteArticle deletes an article.
func (c *Client) DeleteArticle(ctx context.Context, id model.ID) error {
	if err := c.Delete(ctx, "cms/articles/"+url.PathEscape(id.String())+"/"); err != nil {
		return fmt.Errorf("deleting article %s: %w", id, err)
	}
	return nil
}

// PublishArticle publishes an article directly, skipping review.
func (c *Client) PublishArticle(ctx context.Context, id model.ID, payload interface{}) error {
	if err := c.Post(ctx, "cms/articles/"+url.PathEscape(id.String())+"/publish/", nil, payload, nil); err != nil {
		return fmt.Errorf("publishing article %s: %w", id, err)
	}
	return nil
}

// MoveArticleToReview sends a draft to the review queue.
func (c *Client) MoveArticleToReview(ctx context.Context, id model.ID) error {
	if err := c.Post(ctx, "cms/articles/"+url.PathEscape(id.String())+"/review/", nil, nil, nil); err != nil {
		return fmt.Errorf("moving article %s to review: %w", id, err)
	}
	return nil
}

// ListJobs fetches one page of the public job list.
func (c *Client) ListJobs(ctx context.Context, filters map[string]string, cursor *string) (model.Page[model.Job], error) {
	raw, err := c.getRaw(ctx, "jobs/", filterQuery(filters, cursor))
	if err != nil {
		return model.Page[model.Job]{}, fmt.Errorf("listing jobs: %w", err)
	}
	return DecodePage[model.Job](raw)
}

// JobFilterOptions fetches the facets offered by the jobs filter sidebar.
func (c *Client) JobFilterOptions(ctx context.Context) (*model.JobFilterOptions, error) {
	var opts model.JobFilterOptions
	if err := c.Get(ctx, "jobs/filters/", nil, &opts); err != nil {
		return nil, fmt.Errorf("getting job filters: %w", err)
	}
	return &opts, nil
}

// Job fetches a single job by slug.
func (c *Client) Job(ctx context.Context, slug string) (*model.Job, error) {
	var j model.Job
	if err := c.Get(ctx, "jobs/"+url.PathEscape(slug)+"/", nil, &j); err != nil {
		return nil, fmt.Errorf("getting job %s: %w", slug, err)
	}
	return &j, nil
}

// CreateJob creates a job posting.
func (c *Client) CreateJob(ctx context.Context, payload interface{}) (*model.Job, error) {
	var j model.Job
	if err := c.Post(ctx, "cms/jobs/", nil, payload, &j); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}
	return &j, nil
}

// UpdateJob applies a partial update.
func (c *Client) UpdateJob(ctx context.Context, id model.ID, payload interface{}) (*model.Job, error) {
	var j model.Job
	if err := c.Patch(ctx, "cms/jobs/"+url.PathEscape(id.String())+"/", payload, &j); err != nil {
		return nil, fmt.Errorf("updating job %s: %w", id, err)
	}
	return &j, nil
}

// SetJobActive activates or deactivates a job posting.
func (c *Client) SetJobActive(ctx context.Context, id model.ID, active bool) error {
	action := "deactivate"
	if active {
		action = "activate"
	}
	if err := c.Patch(ctx, "cms/jobs/"+url.PathEscape(id.String())+"/"+action+"/", nil, nil); err != nil {
		return fmt.Errorf("%s job %s: %w", action, id, err)
	}
	return nil
}
