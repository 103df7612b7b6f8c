package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/windregistry/masterdata/modules/registry/domain/aggregates/turbine"
	"github.com/windregistry/masterdata/modules/registry/domain/entities/site"
	"github.com/windregistry/masterdata/pkg/logging"
)

const enrichPageSize = 500

// EnrichmentResult summarizes one enrichment pass. It is independent of the
// import counters.
type EnrichmentResult struct {
	Processed int `json:"processed"`
	Linked    int `json:"linked"`
	NoSite    int `json:"noSite"`
	Created   int `json:"sitesCreated"`
}

type EnrichmentOptions struct {
	Workers int
	// NewLookup builds the lookup client for one worker. Each worker owns
	// its client so request pacing applies per connection.
	NewLookup func() CadastralLookup
	Logger    *logrus.Entry
}

// EnrichmentService attaches owning sites to turbines as a pass separate from
// the import.
type EnrichmentService struct {
	turbines  turbine.Repository
	sites     site.Repository
	workers   int
	newLookup func() CadastralLookup
	log       *logrus.Entry
}

func NewEnrichmentService(turbines turbine.Repository, sites site.Repository, opts EnrichmentOptions) *EnrichmentService {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &EnrichmentService{
		turbines:  turbines,
		sites:     sites,
		workers:   opts.Workers,
		newLookup: opts.NewLookup,
		log:       opts.Logger.WithField("component", "enrichment"),
	}
}

// EnrichGSRNs resolves sites for the given turbines. Turbines already linked
// to a site are left alone unless relink is set.
func (s *EnrichmentService) EnrichGSRNs(ctx context.Context, gsrns []string, relink bool) (EnrichmentResult, error) {
	var targets []turbine.Turbine
	for start := 0; start < len(gsrns); start += enrichPageSize {
		end := min(start+enrichPageSize, len(gsrns))
		found, err := s.turbines.GetByGSRNs(ctx, gsrns[start:end])
		if err != nil {
			return EnrichmentResult{}, fmt.Errorf("load turbines: %w", err)
		}
		for _, t := range found {
			if relink || !t.HasSite() {
				targets = append(targets, t)
			}
		}
	}
	return s.run(ctx, targets)
}

// EnrichMissing resolves sites for every turbine that has a cadastral
// reference and no site.
func (s *EnrichmentService) EnrichMissing(ctx context.Context) (EnrichmentResult, error) {
	var targets []turbine.Turbine
	for offset := 0; ; offset += enrichPageSize {
		page, _, err := s.turbines.GetPaginated(ctx, &turbine.FindParams{
			Unlinked: true,
			Limit:    enrichPageSize,
			Offset:   offset,
		})
		if err != nil {
			return EnrichmentResult{}, fmt.Errorf("list unlinked turbines: %w", err)
		}
		targets = append(targets, page...)
		if len(page) < enrichPageSize {
			break
		}
	}
	return s.run(ctx, targets)
}

func (s *EnrichmentService) run(ctx context.Context, targets []turbine.Turbine) (EnrichmentResult, error) {
	if s.newLookup == nil {
		return EnrichmentResult{}, errors.New("enrichment: no lookup client configured")
	}
	s.log.WithFields(logrus.Fields{"turbines": len(targets), "workers": s.workers}).Info("enrichment started")

	jobs := make(chan turbine.Turbine)
	var (
		mu     sync.Mutex
		result EnrichmentResult
		wg     sync.WaitGroup
	)
	for i := 0; i < s.workers; i++ {
		resolver := NewSiteResolver(s.sites, s.newLookup(), s.log.WithField("worker", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				linked, created := s.enrichOne(ctx, resolver, t)
				mu.Lock()
				result.Processed++
				if linked {
					result.Linked++
				} else {
					result.NoSite++
				}
				if created {
					result.Created++
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, t := range targets {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- t:
		}
	}
	close(jobs)
	wg.Wait()

	s.log.WithFields(logrus.Fields{
		"processed": result.Processed,
		"linked":    result.Linked,
		"no_site":   result.NoSite,
	}).Info("enrichment finished")
	return result, ctx.Err()
}

func (s *EnrichmentService) enrichOne(ctx context.Context, resolver *SiteResolver, t turbine.Turbine) (linked, created bool) {
	district, parcelNo := t.CadastralRef()
	res := resolver.Resolve(ctx, district, parcelNo)
	if !res.HasSite() {
		return false, false
	}
	if err := s.turbines.LinkSite(ctx, t.GSRN(), res.Site.ID(), res.PropertyID); err != nil {
		s.log.WithError(err).WithField("gsrn", t.GSRN()).Error("could not link turbine to site")
		return false, res.Created
	}
	return true, res.Created
}
