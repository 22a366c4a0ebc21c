package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"tender_fetcher/internal/domain"
)

type RunStore struct {
	db *sqlx.DB
}

func NewRunStore(db *sqlx.DB) *RunStore {
	return &RunStore{db: db}
}

// CreateRun inserts the run shell and its categories.
func (s *RunStore) CreateRun(ctx context.Context, run *domain.ScrapeRun) error {
	exec := GetExecutor(ctx, s.db)

	_, err := exec.ExecContext(ctx, `
		INSERT INTO scrape_runs (id, source_url, run_at, release_date, listing_date, tender_count)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.SourceURL, run.RunAt, run.ReleaseDate, run.ListingDate, run.TenderCount,
	)
	if err != nil {
		return fmt.Errorf("insert scrape run: %w", err)
	}

	for _, c := range run.Categories {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO tender_categories (id, run_id, name, tender_count)
			VALUES ($1, $2, $3, $4)`,
			c.ID, run.ID, c.Name, c.TenderCount,
		)
		if err != nil {
			return fmt.Errorf("insert category %q: %w", c.Name, err)
		}
	}

	return nil
}

func (s *RunStore) Get(ctx context.Context, id string) (*domain.ScrapeRun, error) {
	exec := GetExecutor(ctx, s.db)

	var run domain.ScrapeRun
	err := sqlx.GetContext(ctx, exec, &run, `
		SELECT id, source_url, run_at, release_date, listing_date, tender_count
		FROM scrape_runs WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}

	err = sqlx.SelectContext(ctx, exec, &run.Categories, `
		SELECT id, run_id, name, tender_count
		FROM tender_categories WHERE run_id = $1 ORDER BY name`, id)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}

	return &run, nil
}
