package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tenacious-erp/integration_services/internal/notification_service/provider"
)

const templateCacheKey = "whatsapp:message_templates"

// TemplateLister is implemented by adapters that can enumerate approved
// message templates.
type TemplateLister interface {
	ListTemplates(ctx context.Context) ([]provider.MessageTemplate, error)
}

// TemplateCatalog serves the approved template list through a shared Redis
// cache so repeated UI loads do not hammer the Graph API.
type TemplateCatalog struct {
	lister TemplateLister
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewTemplateCatalog creates a catalog with the given cache TTL.
func NewTemplateCatalog(lister TemplateLister, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *TemplateCatalog {
	return &TemplateCatalog{
		lister: lister,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With("component", "template_catalog"),
	}
}

// Templates returns the approved templates, from cache when fresh. Cache
// errors degrade to a direct provider call rather than failing the request.
func (c *TemplateCatalog) Templates(ctx context.Context) ([]provider.MessageTemplate, error) {
	if c.rdb != nil {
		cached, err := c.rdb.Get(ctx, templateCacheKey).Bytes()
		if err == nil {
			var templates []provider.MessageTemplate
			if err := json.Unmarshal(cached, &templates); err == nil {
				c.logger.DebugContext(ctx, "Template list served from cache", "count", len(templates))
				return templates, nil
			}
			c.logger.WarnContext(ctx, "Discarding unparseable cached template list", "error", err)
		} else if err != redis.Nil {
			c.logger.WarnContext(ctx, "Template cache read failed, falling through to provider", "error", err)
		}
	}

	templates, err := c.lister.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}

	if c.rdb != nil {
		if data, err := json.Marshal(templates); err == nil {
			if err := c.rdb.Set(ctx, templateCacheKey, data, c.ttl).Err(); err != nil {
				c.logger.WarnContext(ctx, "Template cache write failed", "error", err)
			}
		}
	}
	return templates, nil
}
