// Package plans resolves the member limit of a billing product.
package plans

import (
	"context"
	"strings"
	"time"

	"github.com/flexprice/deprovisioner/internal/config"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/logger"
	gocache "github.com/patrickmn/go-cache"
)

// LimitSource returns the member limit for a product. ok is false when the
// product is unknown.
type LimitSource interface {
	MemberLimit(ctx context.Context, productID string) (limit int, ok bool, err error)
}

// Change describes a plan change in terms of member limits.
type Change struct {
	IsDowngrade bool `json:"is_downgrade"`
	OldLimit    int  `json:"old_limit"`
	NewLimit    int  `json:"new_limit"`
}

// IsUpgrade reports whether the new plan allows more members.
func (c *Change) IsUpgrade() bool {
	return c.NewLimit > c.OldLimit
}

// Lookup answers isDowngrade questions for the subscription change handler.
type Lookup interface {
	// IsDowngrade returns nil when either product has no known limit.
	IsDowngrade(ctx context.Context, oldProductID, newProductID string) (*Change, error)
}

type limitLookup struct {
	source LimitSource
	logger *logger.Logger
}

func NewLookup(source LimitSource, logger *logger.Logger) Lookup {
	return &limitLookup{source: source, logger: logger}
}

func (l *limitLookup) IsDowngrade(ctx context.Context, oldProductID, newProductID string) (*Change, error) {
	if oldProductID == "" || newProductID == "" {
		return nil, ierr.NewError("both product ids are required").
			WithHint("Old and new product ids must be set to compare plans").
			Mark(ierr.ErrValidation)
	}

	oldLimit, ok, err := l.source.MemberLimit(ctx, oldProductID)
	if err != nil {
		return nil, err
	}
	if !ok {
		l.logger.Warnw("unknown product, skipping plan comparison", "product_id", oldProductID)
		return nil, nil
	}

	newLimit, ok, err := l.source.MemberLimit(ctx, newProductID)
	if err != nil {
		return nil, err
	}
	if !ok {
		l.logger.Warnw("unknown product, skipping plan comparison", "product_id", newProductID)
		return nil, nil
	}

	return &Change{
		IsDowngrade: newLimit < oldLimit,
		OldLimit:    oldLimit,
		NewLimit:    newLimit,
	}, nil
}

// Catalog serves limits from plans.limits in configuration.
type Catalog struct {
	limits map[string]int
}

func NewCatalog(cfg *config.Configuration) *Catalog {
	limits := make(map[string]int, len(cfg.Plans.Limits))
	for productID, limit := range cfg.Plans.Limits {
		limits[strings.ToLower(productID)] = limit
	}
	return &Catalog{limits: limits}
}

// Viper lowercases map keys, so lookups are case insensitive.
func (c *Catalog) MemberLimit(_ context.Context, productID string) (int, bool, error) {
	limit, ok := c.limits[strings.ToLower(productID)]
	return limit, ok, nil
}

type cachedSource struct {
	source LimitSource
	cache  *gocache.Cache
}

type cachedLimit struct {
	limit int
	ok    bool
}

// NewCachedSource memoizes source for ttl. Unknown products are cached too.
func NewCachedSource(source LimitSource, ttl time.Duration) LimitSource {
	return &cachedSource{
		source: source,
		cache:  gocache.New(ttl, 2*ttl),
	}
}

func (c *cachedSource) MemberLimit(ctx context.Context, productID string) (int, bool, error) {
	if v, found := c.cache.Get(productID); found {
		cl := v.(cachedLimit)
		return cl.limit, cl.ok, nil
	}

	limit, ok, err := c.source.MemberLimit(ctx, productID)
	if err != nil {
		return 0, false, err
	}
	c.cache.Set(productID, cachedLimit{limit: limit, ok: ok}, gocache.DefaultExpiration)
	return limit, ok, nil
}

// NewLimitSource picks the remote plan API when plans.base_url is set and
// the static catalog otherwise, memoized for plans.cache_ttl.
func NewLimitSource(cfg *config.Configuration, logger *logger.Logger) LimitSource {
	var source LimitSource = NewCatalog(cfg)
	if cfg.Plans.BaseURL != "" {
		source = NewHTTPSource(cfg, logger)
	}
	if cfg.Plans.CacheTTL > 0 {
		source = NewCachedSource(source, cfg.Plans.CacheTTL)
	}
	return source
}
