package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/windregistry/masterdata/modules/registry/domain/entities/site"
	"github.com/windregistry/masterdata/pkg/logging"
)

// CadastralLookup is the pair of chained external lookups used to find the
// owner of a parcel.
type CadastralLookup interface {
	PropertyID(ctx context.Context, district, parcelNo string) (string, error)
	OwnerName(ctx context.Context, propertyID string) (string, error)
}

type ResolutionStatus string

const (
	// StatusNoReference: district or parcel number is blank. Not a failure.
	StatusNoReference ResolutionStatus = "no_reference"
	// StatusLookupFailed: the property id could not be obtained.
	StatusLookupFailed ResolutionStatus = "lookup_failed"
	// StatusResolved: the owner was found and mapped to a site.
	StatusResolved ResolutionStatus = "resolved"
	// StatusPlaceholder: the owner lookup failed and a placeholder name was used.
	StatusPlaceholder ResolutionStatus = "placeholder"
	// StatusStoreFailed: the site could not be read or created.
	StatusStoreFailed ResolutionStatus = "store_failed"
)

// SiteResolution is the outcome of one resolution. Site is nil unless Status
// is StatusResolved or StatusPlaceholder.
type SiteResolution struct {
	Status     ResolutionStatus
	Site       *site.Site
	PropertyID string
	Created    bool
}

func (r SiteResolution) HasSite() bool { return r.Site != nil }

func PlaceholderOwner(propertyID string) string {
	return fmt.Sprintf("Unknown Owner (BFE: %s)", propertyID)
}

// SiteResolver maps a cadastral reference to its owning site, creating the
// site on first sight of an owner name. It never returns an error: every
// failure is logged and reported through SiteResolution.Status.
type SiteResolver struct {
	sites  site.Repository
	lookup CadastralLookup
	log    *logrus.Entry
}

func NewSiteResolver(sites site.Repository, lookup CadastralLookup, log *logrus.Entry) *SiteResolver {
	if log == nil {
		log = logging.Nop()
	}
	return &SiteResolver{sites: sites, lookup: lookup, log: log}
}

func (r *SiteResolver) Resolve(ctx context.Context, district, parcelNo string) (res SiteResolution) {
	district, parcelNo = strings.TrimSpace(district), strings.TrimSpace(parcelNo)
	log := r.log.WithFields(logrus.Fields{"cadastral_district": district, "cadastral_no": parcelNo})

	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("panic", rec).Error("site resolution panicked")
			res = SiteResolution{Status: StatusLookupFailed}
		}
		getMetrics().resolveTotal.WithLabelValues(string(res.Status)).Inc()
	}()

	if district == "" || parcelNo == "" {
		log.Debug("cadastral reference missing, skipping site lookup")
		return SiteResolution{Status: StatusNoReference}
	}

	propertyID, err := r.lookup.PropertyID(ctx, district, parcelNo)
	if err != nil || strings.TrimSpace(propertyID) == "" {
		log.WithError(err).Warn("could not retrieve property id")
		return SiteResolution{Status: StatusLookupFailed}
	}
	log = log.WithField("property_id", propertyID)

	status := StatusResolved
	owner, err := r.lookup.OwnerName(ctx, propertyID)
	if err != nil || strings.TrimSpace(owner) == "" {
		log.WithError(err).Warn("could not retrieve owner name, using placeholder")
		owner = PlaceholderOwner(propertyID)
		status = StatusPlaceholder
	}

	s, created, err := r.getOrCreate(ctx, owner)
	if err != nil {
		log.WithError(err).WithField("owner", owner).Error("could not store site")
		return SiteResolution{Status: StatusStoreFailed, PropertyID: propertyID}
	}
	if created {
		getMetrics().sitesCreated.Inc()
		log.WithField("site", s.Name()).Info("created site")
	}
	return SiteResolution{Status: status, Site: &s, PropertyID: propertyID, Created: created}
}

// getOrCreate reads the site by name and creates it when absent. A concurrent
// writer winning the unique constraint is resolved by reading again.
func (r *SiteResolver) getOrCreate(ctx context.Context, name string) (site.Site, bool, error) {
	existing, err := r.sites.GetByName(ctx, name)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, site.ErrNotFound) {
		return site.Site{}, false, err
	}

	created, err := r.sites.Create(ctx, site.New(name))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, site.ErrNameTaken) {
		return site.Site{}, false, err
	}
	existing, err = r.sites.GetByName(ctx, name)
	if err != nil {
		return site.Site{}, false, fmt.Errorf("re-read site after conflict: %w", err)
	}
	return existing, false, nil
}
