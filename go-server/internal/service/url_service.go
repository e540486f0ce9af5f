package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fonsecaaso/shortlink/go-server/internal/metrics"
	"github.com/fonsecaaso/shortlink/go-server/internal/model"
	"github.com/fonsecaaso/shortlink/go-server/internal/repository"
	"github.com/fonsecaaso/shortlink/go-server/internal/shortcode"
)

var (
	ErrInvalidURL          = errors.New("invalid URL format")
	ErrInvalidShortCode    = errors.New("invalid short code")
	ErrURLNotFound         = repository.ErrURLNotFound
	ErrCodeInUse           = errors.New("short code already in use")
	ErrGenerationExhausted = errors.New("failed to generate unique short code after max attempts")
)

const defaultMaxAttempts = 10

const tracerName = "github.com/fonsecaaso/shortlink/go-server/internal/service"

type URLService struct {
	repo        repository.URLRepository
	gen         shortcode.Generator
	codeLength  int
	maxAttempts int
	logger      *zap.Logger
	tracer      trace.Tracer
}

type Option func(*URLService)

// WithCodeLength sets the length of generated codes
func WithCodeLength(n int) Option {
	return func(s *URLService) {
		if n >= shortcode.MinLength && n <= shortcode.MaxLength {
			s.codeLength = n
		}
	}
}

// WithMaxAttempts bounds how many generated candidates CreateURL tries
func WithMaxAttempts(n int) Option {
	return func(s *URLService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func NewURLService(repo repository.URLRepository, gen shortcode.Generator, opts ...Option) *URLService {
	s := &URLService{
		repo:        repo,
		gen:         gen,
		codeLength:  shortcode.DefaultLength,
		maxAttempts: defaultMaxAttempts,
		logger:      zap.L().With(zap.String("component", "URLService")),
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateURL stores a new mapping. A non-empty customShortCode is used as is
// and fails with ErrCodeInUse when taken; otherwise codes are generated until
// one inserts cleanly or the attempt budget runs out.
func (s *URLService) CreateURL(ctx context.Context, originalURL, customShortCode string) (*model.URL, error) {
	ctx, span := s.tracer.Start(ctx, "URLService.CreateURL", trace.WithAttributes(
		attribute.Bool("custom_code", customShortCode != ""),
	))
	defer span.End()

	if !isValidURL(originalURL) {
		s.logger.Warn("Invalid URL provided", zap.String("url", originalURL))
		metrics.URLCreationTotal.WithLabelValues("invalid").Inc()
		return nil, recordError(span, ErrInvalidURL)
	}

	if customShortCode != "" {
		return s.createWithCustomCode(ctx, span, originalURL, customShortCode)
	}

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		input := originalURL
		if attempt > 0 {
			input = originalURL + "#" + strconv.Itoa(attempt)
		}

		url := &model.URL{
			OriginalURL: originalURL,
			ShortCode:   s.gen.Generate(input, s.codeLength),
		}

		err := s.repo.Insert(ctx, url)
		if err == nil {
			span.SetAttributes(attribute.String("short_code", url.ShortCode), attribute.Int("attempts", attempt+1))
			metrics.URLCreationTotal.WithLabelValues("success").Inc()
			s.logger.Info("URL shortened successfully",
				zap.String("id", url.ID),
				zap.String("short_code", url.ShortCode),
				zap.Int("attempt", attempt+1),
			)
			return url, nil
		}
		if !errors.Is(err, repository.ErrCodeConflict) {
			metrics.URLCreationTotal.WithLabelValues("error").Inc()
			s.logger.Error("Failed to store URL", zap.Error(err))
			return nil, recordError(span, err)
		}

		metrics.ShortCodeCollisionsTotal.WithLabelValues("generated").Inc()
		s.logger.Debug("Generated short code collided, retrying",
			zap.String("short_code", url.ShortCode),
			zap.Int("attempt", attempt+1),
		)
	}

	metrics.URLCreationTotal.WithLabelValues("exhausted").Inc()
	s.logger.Error("Short code generation exhausted", zap.Int("max_attempts", s.maxAttempts))
	return nil, recordError(span, ErrGenerationExhausted)
}

func (s *URLService) createWithCustomCode(ctx context.Context, span trace.Span, originalURL, code string) (*model.URL, error) {
	if !shortcode.IsValid(code) {
		metrics.URLCreationTotal.WithLabelValues("invalid").Inc()
		return nil, recordError(span, ErrInvalidShortCode)
	}

	url := &model.URL{OriginalURL: originalURL, ShortCode: code}
	if err := s.repo.Insert(ctx, url); err != nil {
		if errors.Is(err, repository.ErrCodeConflict) {
			metrics.ShortCodeCollisionsTotal.WithLabelValues("custom").Inc()
			metrics.URLCreationTotal.WithLabelValues("conflict").Inc()
			s.logger.Info("Custom short code already in use", zap.String("short_code", code))
			return nil, recordError(span, ErrCodeInUse)
		}
		metrics.URLCreationTotal.WithLabelValues("error").Inc()
		s.logger.Error("Failed to store URL", zap.Error(err), zap.String("short_code", code))
		return nil, recordError(span, err)
	}

	span.SetAttributes(attribute.String("short_code", code))
	metrics.URLCreationTotal.WithLabelValues("success").Inc()
	s.logger.Info("URL shortened with custom code", zap.String("id", url.ID), zap.String("short_code", code))
	return url, nil
}

// GetURL looks a mapping up without counting a click
func (s *URLService) GetURL(ctx context.Context, code string) (*model.URL, error) {
	ctx, span := s.tracer.Start(ctx, "URLService.GetURL", trace.WithAttributes(attribute.String("short_code", code)))
	defer span.End()

	url, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, recordError(span, err)
	}
	return url, nil
}

func (s *URLService) GetAllURLs(ctx context.Context) ([]model.URL, error) {
	ctx, span := s.tracer.Start(ctx, "URLService.GetAllURLs")
	defer span.End()

	urls, err := s.repo.FindAll(ctx)
	if err != nil {
		s.logger.Error("Failed to list URLs", zap.Error(err))
		return nil, recordError(span, err)
	}
	if urls == nil {
		urls = []model.URL{}
	}
	span.SetAttributes(attribute.Int("count", len(urls)))
	return urls, nil
}

// RedirectURL counts one click and returns the updated mapping
func (s *URLService) RedirectURL(ctx context.Context, code string) (*model.URL, error) {
	ctx, span := s.tracer.Start(ctx, "URLService.RedirectURL", trace.WithAttributes(attribute.String("short_code", code)))
	defer span.End()

	url, err := s.repo.IncrementClicks(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrURLNotFound) {
			metrics.URLRedirectTotal.WithLabelValues("not_found").Inc()
		} else {
			metrics.URLRedirectTotal.WithLabelValues("error").Inc()
			s.logger.Error("Failed to record click", zap.Error(err), zap.String("short_code", code))
		}
		return nil, recordError(span, err)
	}

	metrics.URLRedirectTotal.WithLabelValues("success").Inc()
	span.SetAttributes(attribute.Int64("clicks", url.Clicks))
	return url, nil
}

// UpdateURL changes the target and/or the code of the mapping at code. Nil
// arguments are left alone; either every change lands or none does.
func (s *URLService) UpdateURL(ctx context.Context, code string, originalURL, newShortCode *string) (*model.URL, error) {
	ctx, span := s.tracer.Start(ctx, "URLService.UpdateURL", trace.WithAttributes(attribute.String("short_code", code)))
	defer span.End()

	if originalURL != nil && !isValidURL(*originalURL) {
		return nil, recordError(span, ErrInvalidURL)
	}
	if newShortCode != nil && !shortcode.IsValid(*newShortCode) {
		return nil, recordError(span, ErrInvalidShortCode)
	}

	current, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, recordError(span, err)
	}

	update := model.URLUpdate{OriginalURL: originalURL}
	if newShortCode != nil && *newShortCode != current.ShortCode {
		update.ShortCode = newShortCode
	}
	if update.IsEmpty() {
		return current, nil
	}

	if update.ShortCode != nil {
		if _, err := s.repo.FindByCode(ctx, *update.ShortCode); err == nil {
			metrics.ShortCodeCollisionsTotal.WithLabelValues("rename").Inc()
			return nil, recordError(span, ErrCodeInUse)
		} else if !errors.Is(err, repository.ErrURLNotFound) {
			return nil, recordError(span, err)
		}
	}

	updated, err := s.repo.Update(ctx, code, update)
	if err != nil {
		if errors.Is(err, repository.ErrCodeConflict) {
			// claimed between the check and the write
			metrics.ShortCodeCollisionsTotal.WithLabelValues("rename").Inc()
			return nil, recordError(span, ErrCodeInUse)
		}
		s.logger.Error("Failed to update URL", zap.Error(err), zap.String("short_code", code))
		return nil, recordError(span, err)
	}

	s.logger.Info("URL updated",
		zap.String("id", updated.ID),
		zap.String("short_code", updated.ShortCode),
		zap.Bool("renamed", update.ShortCode != nil),
	)
	return updated, nil
}

// DeleteURL removes the mapping with the given id, freeing its code
func (s *URLService) DeleteURL(ctx context.Context, id string) (*model.DeleteResult, error) {
	ctx, span := s.tracer.Start(ctx, "URLService.DeleteURL", trace.WithAttributes(attribute.String("id", id)))
	defer span.End()

	if _, err := s.repo.DeleteByID(ctx, id); err != nil {
		if !errors.Is(err, repository.ErrURLNotFound) {
			s.logger.Error("Failed to delete URL", zap.Error(err), zap.String("id", id))
		}
		return nil, recordError(span, err)
	}

	s.logger.Info("URL deleted", zap.String("id", id))
	return &model.DeleteResult{
		Success: true,
		Message: fmt.Sprintf("URL with id %s deleted successfully", id),
	}, nil
}

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func isValidURL(rawURL string) bool {
	if strings.TrimSpace(rawURL) != rawURL || rawURL == "" {
		return false
	}

	parsed, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return false
	}

	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
