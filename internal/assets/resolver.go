// Package assets finds media assets in the object store by name and category
// and hands out short-lived signed URLs for them.
package assets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/cuongbtq/media-jobs/internal/worker/domain"
	"github.com/cuongbtq/media-jobs/shared/objectstore"
	"golang.org/x/sync/singleflight"
)

// Store is the part of the object store the resolver reads
type Store interface {
	ListPage(ctx context.Context, bucket, continuation string) (objectstore.Page, error)
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// Ref identifies an asset by bucket, logical name, category and filename suffix
type Ref struct {
	Bucket   string
	Name     string
	Category string
	Suffix   string
}

// Pattern is the substring a matching key must contain: name(category)suffix
// with all whitespace removed from name and category.
func (r Ref) Pattern() string {
	return stripSpace(r.Name) + "(" + stripSpace(r.Category) + ")" + r.Suffix
}

// lookupTimeout bounds a shared lookup, which no single caller owns
const lookupTimeout = time.Minute

// Resolver resolves asset references to signed URLs
type Resolver struct {
	store  Store
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewResolver creates a resolver issuing URLs valid for ttl
func NewResolver(store Store, ttl time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, ttl: ttl, logger: logger}
}

// Resolve returns a signed URL for the first key containing ref.Pattern().
//
// A missing asset yields a *domain.AssetNotFoundError. A failed listing or
// signing call yields a *domain.RetryableError so callers can retry it.
// Concurrent callers share one lookup; each returns early only on its own ctx.
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (string, error) {
	pattern := ref.Pattern()
	flightKey := ref.Bucket + "/" + pattern

	ch := r.group.DoChan(flightKey, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		return r.resolve(lookupCtx, ref.Bucket, pattern)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			r.logger.Debug("Asset lookup shared with concurrent caller",
				slog.String("bucket", ref.Bucket),
				slog.String("pattern", pattern),
			)
		}
		return res.Val.(string), nil
	}
}

func (r *Resolver) resolve(ctx context.Context, bucket, pattern string) (string, error) {
	key, err := r.findKey(ctx, bucket, pattern)
	if err != nil {
		return "", err
	}

	url, err := r.store.PresignGet(ctx, bucket, key, r.ttl)
	if err != nil {
		return "", domain.NewRetryableError(fmt.Errorf("sign asset %s: %w", key, err))
	}

	r.logger.Debug("Asset resolved",
		slog.String("bucket", bucket),
		slog.String("pattern", pattern),
		slog.String("key", key),
	)

	return url, nil
}

func (r *Resolver) findKey(ctx context.Context, bucket, pattern string) (string, error) {
	continuation := ""
	pages := 0

	for {
		page, err := r.store.ListPage(ctx, bucket, continuation)
		if err != nil {
			return "", domain.NewRetryableError(fmt.Errorf("list bucket %s: %w", bucket, err))
		}
		pages++

		for _, obj := range page.Objects {
			if strings.Contains(obj.Key, pattern) {
				return obj.Key, nil
			}
		}

		if !page.Truncated || page.NextContinuation == "" {
			break
		}
		continuation = page.NextContinuation
	}

	r.logger.Warn("Asset not found",
		slog.String("bucket", bucket),
		slog.String("pattern", pattern),
		slog.Int("pages_scanned", pages),
	)

	return "", &domain.AssetNotFoundError{Bucket: bucket, Pattern: pattern}
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
