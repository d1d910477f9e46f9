// Package catalog caches the image service's model list and model details.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/gomcpgo/remote_image_ai/pkg/metrics"
	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

const (
	modelsKey       = "models"
	detailKeyPrefix = "model:"
	detailFetchers  = 4
)

// Source is the part of the image client the catalog reads from
type Source interface {
	GetModels(ctx context.Context) (*types.ModelList, error)
	GetModelDetail(ctx context.Context, name string) (*types.ModelDetail, error)
}

// Catalog is a read-through cache in front of Source. Concurrent misses for
// the same key share one remote call.
type Catalog struct {
	source  Source
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	logger  *zap.Logger
	metrics *metrics.Collector
}

// New creates a catalog. A nil backend means an in-memory cache.
func New(source Source, backend Backend, ttl time.Duration, logger *zap.Logger, m *metrics.Collector) *Catalog {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Catalog{
		source:  source,
		backend: backend,
		ttl:     ttl,
		logger:  logger.With(zap.String("component", "catalog")),
		metrics: m,
	}
}

// Models returns the model list
func (c *Catalog) Models(ctx context.Context) (*types.ModelList, error) {
	var list types.ModelList
	err := c.cached(ctx, modelsKey, &list, func(ctx context.Context) (interface{}, error) {
		return c.source.GetModels(ctx)
	})
	if err != nil {
		return nil, err
	}
	if list.Models == nil {
		list.Models = map[string]map[string]interface{}{}
	}
	return &list, nil
}

// ModelNames returns the sorted names of all models
func (c *Catalog) ModelNames(ctx context.Context) ([]string, error) {
	list, err := c.Models(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list.Models))
	for name := range list.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Model returns one model's configuration
func (c *Catalog) Model(ctx context.Context, name string) (*types.ModelDetail, error) {
	if name == "" {
		return nil, types.InvalidRequest("model name is required")
	}
	var detail types.ModelDetail
	err := c.cached(ctx, detailKeyPrefix+name, &detail, func(ctx context.Context) (interface{}, error) {
		return c.source.GetModelDetail(ctx, name)
	})
	if err != nil {
		if types.StatusCodeOf(err) == 404 {
			return nil, types.NotFound("model %q is not offered by the image service", name)
		}
		return nil, err
	}
	if detail.Name == "" {
		detail.Name = name
	}
	return &detail, nil
}

// Details fetches several models in parallel. The first failure cancels
// the remaining fetches.
func (c *Catalog) Details(ctx context.Context, names []string) (map[string]*types.ModelDetail, error) {
	out := make([]*types.ModelDetail, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailFetchers)
	for i, name := range names {
		g.Go(func() error {
			d, err := c.Model(gctx, name)
			if err != nil {
				return err
			}
			out[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	details := make(map[string]*types.ModelDetail, len(names))
	for i, name := range names {
		details[name] = out[i]
	}
	return details, nil
}

// Invalidate drops every cached entry this catalog knows about
func (c *Catalog) Invalidate(ctx context.Context) error {
	keys := []string{modelsKey}
	if names, err := c.cachedNames(ctx); err == nil {
		for _, n := range names {
			keys = append(keys, detailKeyPrefix+n)
		}
	}
	return c.backend.Delete(ctx, keys...)
}

func (c *Catalog) cachedNames(ctx context.Context) ([]string, error) {
	raw, err := c.backend.Get(ctx, modelsKey)
	if err != nil {
		return nil, err
	}
	var list types.ModelList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list.Models))
	for n := range list.Models {
		names = append(names, n)
	}
	return names, nil
}

func (c *Catalog) cached(ctx context.Context, key string, dest interface{}, fetch func(context.Context) (interface{}, error)) error {
	raw, err := c.backend.Get(ctx, key)
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(raw, dest); jsonErr == nil {
			c.metrics.RecordCatalogLookup(true)
			return nil
		}
		c.logger.Warn("discarding undecodable catalog entry", zap.String("key", key))
	case !errors.Is(err, ErrCacheMiss):
		c.logger.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
	}
	c.metrics.RecordCatalogLookup(false)

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		val, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.Warn("catalog cache write failed", zap.String("key", key), zap.Error(err))
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	if shared {
		c.logger.Debug("catalog fetch shared", zap.String("key", key))
	}
	return json.Unmarshal(v.([]byte), dest)
}
