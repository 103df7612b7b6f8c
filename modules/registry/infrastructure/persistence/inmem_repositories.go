package persistence

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/windregistry/masterdata/modules/registry/domain/aggregates/turbine"
	"github.com/windregistry/masterdata/modules/registry/domain/entities/site"
)

type SafeMap[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func NewSafeMap[K comparable, V any]() *SafeMap[K, V] {
	return &SafeMap[K, V]{
		m: make(map[K]V),
	}
}

func (s *SafeMap[K, V]) Set(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
}

func (s *SafeMap[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, found := s.m[key]
	return val, found
}

func (s *SafeMap[K, V]) Update(key K, fn func(V) V) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, found := s.m[key]
	if !found {
		return false
	}
	s.m[key] = fn(val)
	return true
}

func (s *SafeMap[K, V]) Values() []V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Collect(maps.Values(s.m))
}

func (s *SafeMap[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// InmemTurbineRepository keeps turbines in process memory keyed by GSRN. It
// backs dry runs and tests.
type InmemTurbineRepository struct {
	storage *SafeMap[string, turbine.Turbine]
	now     func() time.Time

	mu      sync.Mutex
	flushes int
}

func NewInmemTurbineRepository() *InmemTurbineRepository {
	return &InmemTurbineRepository{
		storage: NewSafeMap[string, turbine.Turbine](),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *InmemTurbineRepository) GetByGSRN(_ context.Context, gsrn string) (turbine.Turbine, error) {
	t, found := r.storage.Get(gsrn)
	if !found {
		return turbine.Turbine{}, turbine.ErrNotFound
	}
	return t, nil
}

func (r *InmemTurbineRepository) GetByGSRNs(_ context.Context, gsrns []string) ([]turbine.Turbine, error) {
	var out []turbine.Turbine
	for _, g := range gsrns {
		if t, found := r.storage.Get(g); found {
			out = append(out, t)
		}
	}
	sortTurbines(out)
	return out, nil
}

func (r *InmemTurbineRepository) GetPaginated(_ context.Context, params *turbine.FindParams) ([]turbine.Turbine, int64, error) {
	if params == nil {
		params = &turbine.FindParams{}
	}
	var matched []turbine.Turbine
	for _, t := range r.storage.Values() {
		if matchesTurbine(t, params) {
			matched = append(matched, t)
		}
	}
	sortTurbines(matched)
	total := int64(len(matched))
	return paginate(matched, params.Limit, params.Offset), total, nil
}

func matchesTurbine(t turbine.Turbine, params *turbine.FindParams) bool {
	a := t.Attributes()
	if params.Manufacturer != "" && !containsFold(a.Manufacturer, params.Manufacturer) {
		return false
	}
	if params.Model != "" && !containsFold(a.TypeDesignation, params.Model) {
		return false
	}
	if params.SiteID != nil && (t.SiteID() == nil || *t.SiteID() != *params.SiteID) {
		return false
	}
	if params.Unlinked {
		district, parcelNo := t.CadastralRef()
		if t.HasSite() || district == "" || parcelNo == "" {
			return false
		}
	}
	return true
}

func containsFold(v *string, sub string) bool {
	if v == nil {
		return false
	}
	return strings.Contains(strings.ToLower(*v), strings.ToLower(strings.TrimSpace(sub)))
}

func (r *InmemTurbineRepository) Stats(_ context.Context) (turbine.Stats, error) {
	manufacturers := make(map[string]struct{})
	models := make(map[string]struct{})
	var s turbine.Stats
	for _, t := range r.storage.Values() {
		s.Total++
		a := t.Attributes()
		if a.Manufacturer != nil {
			manufacturers[*a.Manufacturer] = struct{}{}
		}
		if a.TypeDesignation != nil {
			models[*a.TypeDesignation] = struct{}{}
		}
		if t.HasSite() {
			s.WithSite++
		}
	}
	s.Manufacturers = int64(len(manufacturers))
	s.Models = int64(len(models))
	return s, nil
}

func (r *InmemTurbineRepository) LinkSite(_ context.Context, gsrn string, siteID uuid.UUID, propertyID string) error {
	now := r.now()
	ok := r.storage.Update(gsrn, func(t turbine.Turbine) turbine.Turbine {
		linked := t.LinkedTo(siteID, propertyID)
		return turbine.Hydrate(linked.ID(), linked.GSRN(), linked.Attributes(), linked.SiteID(), linked.PropertyID(), linked.CreatedAt(), now)
	})
	if !ok {
		return turbine.ErrNotFound
	}
	return nil
}

func (r *InmemTurbineRepository) NewSession() turbine.Session {
	return &inmemSession{repo: r}
}

// Flushes counts the commits issued by all sessions.
func (r *InmemTurbineRepository) Flushes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushes
}

func (r *InmemTurbineRepository) Len() int {
	return r.storage.Len()
}

func (r *InmemTurbineRepository) apply(staged []turbine.Turbine) {
	now := r.now()
	r.mu.Lock()
	r.flushes++
	r.mu.Unlock()
	for _, t := range staged {
		id, createdAt, siteID, propertyID := t.ID(), now, t.SiteID(), t.PropertyID()
		if existing, found := r.storage.Get(t.GSRN()); found {
			id, createdAt = existing.ID(), existing.CreatedAt()
			siteID, propertyID = existing.SiteID(), existing.PropertyID()
		}
		r.storage.Set(t.GSRN(), turbine.Hydrate(id, t.GSRN(), t.Attributes(), siteID, propertyID, createdAt, now))
	}
}

type inmemSession struct {
	repo   *InmemTurbineRepository
	staged []turbine.Turbine
}

func (s *inmemSession) Upsert(_ context.Context, t turbine.Turbine) error {
	s.staged = append(s.staged, t)
	return nil
}

func (s *inmemSession) Pending() int {
	return len(s.staged)
}

func (s *inmemSession) Flush(ctx context.Context) error {
	staged := s.staged
	s.staged = nil
	if err := ctx.Err(); err != nil {
		return err
	}
	s.repo.apply(staged)
	return nil
}

// InmemSiteRepository enforces name uniqueness like the sites table does.
type InmemSiteRepository struct {
	turbines *InmemTurbineRepository

	mu     sync.RWMutex
	byID   map[uuid.UUID]site.Site
	byName map[string]uuid.UUID
}

// NewInmemSiteRepository counts linked turbines through turbines, which may
// be nil.
func NewInmemSiteRepository(turbines *InmemTurbineRepository) *InmemSiteRepository {
	return &InmemSiteRepository{
		turbines: turbines,
		byID:     make(map[uuid.UUID]site.Site),
		byName:   make(map[string]uuid.UUID),
	}
}

func (r *InmemSiteRepository) GetByID(_ context.Context, id uuid.UUID) (site.Site, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, found := r.byID[id]
	if !found {
		return site.Site{}, site.ErrNotFound
	}
	return s, nil
}

func (r *InmemSiteRepository) GetByName(_ context.Context, name string) (site.Site, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, found := r.byName[name]
	if !found {
		return site.Site{}, site.ErrNotFound
	}
	return r.byID[id], nil
}

func (r *InmemSiteRepository) Create(_ context.Context, s site.Site) (site.Site, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byName[s.Name()]; taken {
		return site.Site{}, site.ErrNameTaken
	}
	r.byID[s.ID()] = s
	r.byName[s.Name()] = s.ID()
	return s, nil
}

func (r *InmemSiteRepository) GetSummary(ctx context.Context, id uuid.UUID) (site.Summary, error) {
	s, err := r.GetByID(ctx, id)
	if err != nil {
		return site.Summary{}, err
	}
	return site.Summary{Site: s, TurbineCount: r.turbineCount(id)}, nil
}

func (r *InmemSiteRepository) GetPaginated(_ context.Context, params *site.FindParams) ([]site.Summary, int64, error) {
	if params == nil {
		params = &site.FindParams{}
	}
	r.mu.RLock()
	all := slices.Collect(maps.Values(r.byID))
	r.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].Name() < all[j].Name() })

	page := paginate(all, params.Limit, params.Offset)
	out := make([]site.Summary, 0, len(page))
	for _, s := range page {
		out = append(out, site.Summary{Site: s, TurbineCount: r.turbineCount(s.ID())})
	}
	return out, int64(len(all)), nil
}

func (r *InmemSiteRepository) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.byID)), nil
}

func (r *InmemSiteRepository) turbineCount(id uuid.UUID) int64 {
	if r.turbines == nil {
		return 0
	}
	var n int64
	for _, t := range r.turbines.storage.Values() {
		if t.SiteID() != nil && *t.SiteID() == id {
			n++
		}
	}
	return n
}

func sortTurbines(ts []turbine.Turbine) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].GSRN() < ts[j].GSRN() })
}

func paginate[T any](items []T, limit, offset int) []T {
	offset = max(offset, 0)
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
