package services

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/windregistry/masterdata/pkg/logging"
)

// BackgroundEnricher runs enrichment passes detached from whoever asked for
// them. At most one pass runs at a time; requests arriving meanwhile queue up
// behind it.
type BackgroundEnricher struct {
	svc *EnrichmentService
	log *logrus.Entry

	mu   sync.Mutex
	wg   sync.WaitGroup
	ctx  context.Context
	stop context.CancelFunc
}

// NewBackgroundEnricher runs passes under a child of base, which carries the
// request-independent values the repositories need, such as the pool.
func NewBackgroundEnricher(base context.Context, svc *EnrichmentService, log *logrus.Entry) *BackgroundEnricher {
	if log == nil {
		log = logging.Nop()
	}
	ctx, stop := context.WithCancel(base)
	return &BackgroundEnricher{
		svc:  svc,
		log:  log.WithField("component", "background-enrichment"),
		ctx:  ctx,
		stop: stop,
	}
}

// EnrichGSRNs schedules a pass over gsrns. Empty input schedules nothing.
func (b *BackgroundEnricher) EnrichGSRNs(gsrns []string) {
	if len(gsrns) == 0 {
		return
	}
	owned := append([]string(nil), gsrns...)
	b.spawn("gsrns", func(ctx context.Context) (EnrichmentResult, error) {
		return b.svc.EnrichGSRNs(ctx, owned, false)
	})
}

// EnrichMissing schedules a pass over every unlinked turbine.
func (b *BackgroundEnricher) EnrichMissing() {
	b.spawn("missing", b.svc.EnrichMissing)
}

// Wait blocks until every scheduled pass has returned.
func (b *BackgroundEnricher) Wait() {
	b.wg.Wait()
}

// Close cancels running passes and waits for them.
func (b *BackgroundEnricher) Close() {
	b.stop()
	b.wg.Wait()
}

func (b *BackgroundEnricher) spawn(kind string, fn func(context.Context) (EnrichmentResult, error)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.mu.Lock()
		defer b.mu.Unlock()

		log := b.log.WithField("pass", kind)
		res, err := fn(b.ctx)
		if err != nil {
			log.WithError(err).Error("background enrichment failed")
			return
		}
		log.WithFields(logrus.Fields{
			"processed": res.Processed,
			"linked":    res.Linked,
			"no_site":   res.NoSite,
			"created":   res.Created,
		}).Info("background enrichment done")
	}()
}
