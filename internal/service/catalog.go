package service

import (
	"context"
	"errors"
	"time"

	"vallenar/internal/apierror"
	"vallenar/internal/infra"
	"vallenar/internal/model"
	"vallenar/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Catalog resolves the current price and name of products for quoting.
type Catalog interface {
	// Products returns active products keyed by id. Unknown or inactive ids are
	// absent from the map.
	Products(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Product, error)
	Invalidate(ctx context.Context, id uuid.UUID)
}

type catalog struct {
	repo  repository.ProductRepository
	cache infra.Cache
	ttl   time.Duration
}

// NewCatalog wraps repo with a read-through cache. cache may be nil.
func NewCatalog(repo repository.ProductRepository, cache infra.Cache, ttl time.Duration) Catalog {
	return &catalog{repo: repo, cache: cache, ttl: ttl}
}

func productKey(id uuid.UUID) string { return "producto:" + id.String() }

func (c *catalog) Products(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Product, error) {
	out := make(map[uuid.UUID]model.Product, len(ids))
	var missing []uuid.UUID
	for _, id := range ids {
		if _, seen := out[id]; seen {
			continue
		}
		if c.cache != nil {
			var p model.Product
			err := c.cache.Get(ctx, productKey(id), &p)
			if err == nil {
				out[id] = p
				continue
			}
			if !errors.Is(err, infra.ErrCacheMiss) {
				log.Warn().Err(err).Str("product_id", id.String()).Msg("catalog: cache read failed")
			}
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	products, err := c.repo.FindActiveByIDs(ctx, missing)
	if err != nil {
		return nil, apierror.Infrastructure(err)
	}
	for _, p := range products {
		out[p.ID] = p
		if c.cache != nil {
			if err := c.cache.Set(ctx, productKey(p.ID), p, c.ttl); err != nil {
				log.Warn().Err(err).Str("product_id", p.ID.String()).Msg("catalog: cache write failed")
			}
		}
	}
	return out, nil
}

func (c *catalog) Invalidate(ctx context.Context, id uuid.UUID) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Delete(ctx, productKey(id)); err != nil {
		log.Warn().Err(err).Str("product_id", id.String()).Msg("catalog: cache delete failed")
	}
}
