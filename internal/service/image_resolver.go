package service

import (
	"context"
	"time"

	"github.com/basel-ax/watchimage/internal/domain"
	"github.com/charmbracelet/log"
)

// Verifier is the existence check applied to every candidate URL
type Verifier interface {
	Verify(ctx context.Context, rawURL string) bool
}

// ImageResolverService implements domain.ImageResolver
type ImageResolverService struct {
	catalog   *Catalog
	verifier  Verifier
	suggester domain.URLSuggester // nil when no credential is configured
	now       func() time.Time
	logger    *log.Logger
}

var _ domain.ImageResolver = (*ImageResolverService)(nil)

// NewImageResolverService creates a resolver. suggester may be nil, which
// disables the fallback stage.
func NewImageResolverService(catalog *Catalog, verifier Verifier, suggester domain.URLSuggester, logger *log.Logger) *ImageResolverService {
	if logger == nil {
		logger = log.Default()
	}
	return &ImageResolverService{
		catalog:   catalog,
		verifier:  verifier,
		suggester: suggester,
		now:       catalog.now,
		logger:    logger,
	}
}

// Resolve tries the brand catalog first and the URL suggester second.
// Candidates are checked one at a time; the first one that verifies wins.
func (s *ImageResolverService) Resolve(ctx context.Context, req domain.ImageRequest) (imageURL string, found bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("image resolution panicked", "manufacturer", req.Manufacturer, "model", req.Model, "panic", r)
			imageURL, found = "", false
		}
	}()

	brand := DetectBrand(req.Manufacturer)
	logger := s.logger.With("manufacturer", req.Manufacturer, "model", req.Model, "reference", req.ReferenceNumber)

	candidates := s.catalog.Candidates(brand, req.ReferenceNumber, req.Model)
	logger.Debug("trying catalog candidates",
		"brand", string(brand), "registered", s.catalog.Registered(brand), "count", len(candidates))
	if u, ok := s.firstVerified(ctx, candidates); ok {
		logger.Info("found image via catalog pattern", "url", u)
		return u, true
	}

	if u, ok := s.resolveFallback(ctx, req, logger); ok {
		logger.Info("found image via suggester", "url", u)
		return u, true
	}

	logger.Info("no image found")
	return "", false
}

func (s *ImageResolverService) resolveFallback(ctx context.Context, req domain.ImageRequest, logger *log.Logger) (string, bool) {
	if s.suggester == nil {
		logger.Debug("no suggester configured, skipping fallback")
		return "", false
	}

	text, err := s.suggester.SuggestImageURL(ctx, describeWatch(req))
	if err != nil {
		logger.Warn("suggester request failed", "error", err)
		return "", false
	}

	suggested := cleanSuggestion(text)
	if !isValidImageURL(suggested) {
		logger.Warn("suggester did not return a usable image URL", "response", text)
		return "", false
	}

	if s.verifier.Verify(ctx, suggested) {
		return suggested, true
	}
	logger.Debug("suggested URL did not verify", "url", suggested)

	return s.firstVerified(ctx, yearVariants(suggested, s.now()))
}

func (s *ImageResolverService) firstVerified(ctx context.Context, urls []string) (string, bool) {
	for _, u := range urls {
		if ctx.Err() != nil {
			return "", false
		}
		if s.verifier.Verify(ctx, u) {
			return u, true
		}
	}
	return "", false
}
