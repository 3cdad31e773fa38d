package jobboard

import (
	"context"
	"fmt"

	"magabot/internal/capability"
	"magabot/internal/models"
)

// SearchHandler is the job-search capability. Criteria default to the payload's;
// free text overrides the role.
func SearchHandler(hh *HHClient, enricher *Enricher, enrichLimit int) capability.Handler {
	return func(ctx context.Context, p models.Payload) (*models.Result, error) {
		var criteria models.Criteria
		if p.Criteria != nil {
			criteria = *p.Criteria
		}
		postings, err := hh.Search(ctx, QueryFromCriteria(p.Text, criteria))
		if err != nil {
			return nil, err
		}
		if enricher != nil && enrichLimit > 0 {
			enricher.Enrich(ctx, postings, enrichLimit)
		}
		return &models.Result{
			Text:     fmt.Sprintf("Found %d postings", len(postings)),
			Postings: postings,
		}, nil
	}
}

// Spec builds the job-search registry entry
func Spec(hh *HHClient, enricher *Enricher, enrichLimit int) capability.Spec {
	return capability.Spec{
		Kind:        models.CapJobSearch,
		Class:       models.ClassSlow,
		Description: "Vacancy search (hh.ru)",
		Primary:     SearchHandler(hh, enricher, enrichLimit),
	}
}
