package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fonsecaaso/shortlink/go-server/internal/model"
	"github.com/fonsecaaso/shortlink/go-server/internal/repository"
	"github.com/fonsecaaso/shortlink/go-server/internal/service"
	"github.com/fonsecaaso/shortlink/go-server/internal/shortcode"
)

type CreateURLRequest struct {
	OriginalURL     string `json:"originalUrl" binding:"required,url"`
	CustomShortCode string `json:"customShortCode" binding:"omitempty,min=3,max=10,alphanum"`
}

type UpdateURLRequest struct {
	OriginalURL  *string `json:"originalUrl" binding:"omitempty,url"`
	NewShortCode *string `json:"newShortCode" binding:"omitempty,min=3,max=10,alphanum"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// URLService is the subset of service.URLService the handler needs
type URLService interface {
	CreateURL(ctx context.Context, originalURL, customShortCode string) (*model.URL, error)
	GetURL(ctx context.Context, code string) (*model.URL, error)
	GetAllURLs(ctx context.Context) ([]model.URL, error)
	RedirectURL(ctx context.Context, code string) (*model.URL, error)
	UpdateURL(ctx context.Context, code string, originalURL, newShortCode *string) (*model.URL, error)
	DeleteURL(ctx context.Context, id string) (*model.DeleteResult, error)
}

type URLHandler struct {
	service URLService
	logger  *zap.Logger
}

func NewURLHandler(service URLService) *URLHandler {
	return &URLHandler{
		service: service,
		logger:  zap.L().With(zap.String("component", "URLHandler")),
	}
}

func (h *URLHandler) CreateURL(c *gin.Context) {
	var req CreateURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		h.bindError(c, err)
		return
	}

	url, err := h.service.CreateURL(c.Request.Context(), req.OriginalURL, req.CustomShortCode)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, url)
}

func (h *URLHandler) GetAllURLs(c *gin.Context) {
	urls, err := h.service.GetAllURLs(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, urls)
}

func (h *URLHandler) GetURL(c *gin.Context) {
	code, ok := h.codeParam(c)
	if !ok {
		return
	}

	url, err := h.service.GetURL(c.Request.Context(), code)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, url)
}

// RecordClick counts a click and returns the updated record as JSON
func (h *URLHandler) RecordClick(c *gin.Context) {
	code, ok := h.codeParam(c)
	if !ok {
		return
	}

	url, err := h.service.RedirectURL(c.Request.Context(), code)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, url)
}

// Redirect counts a click and sends the browser to the original URL
func (h *URLHandler) Redirect(c *gin.Context) {
	code, ok := h.codeParam(c)
	if !ok {
		return
	}

	url, err := h.service.RedirectURL(c.Request.Context(), code)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Redirect(http.StatusFound, url.OriginalURL)
}

func (h *URLHandler) UpdateURL(c *gin.Context) {
	code, ok := h.codeParam(c)
	if !ok {
		return
	}

	var req UpdateURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		h.bindError(c, err)
		return
	}

	url, err := h.service.UpdateURL(c.Request.Context(), code, req.OriginalURL, req.NewShortCode)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, url)
}

func (h *URLHandler) DeleteURL(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "ID parameter is required",
			Code:  "MISSING_ID",
		})
		return
	}

	result, err := h.service.DeleteURL(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// codeParam rejects codes that could never have been stored
func (h *URLHandler) codeParam(c *gin.Context) (string, bool) {
	code := strings.TrimSpace(c.Param("code"))
	if !shortcode.IsValid(code) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid short code format",
			Code:  "INVALID_SHORT_CODE",
		})
		return "", false
	}
	return code, true
}

func (h *URLHandler) bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "Invalid request format",
		Code:    "INVALID_REQUEST",
		Details: err.Error(),
	})
}

func (h *URLHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid URL format",
			Code:  "INVALID_URL",
		})
	case errors.Is(err, service.ErrInvalidShortCode):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid short code format",
			Code:  "INVALID_SHORT_CODE",
		})
	case errors.Is(err, repository.ErrURLNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Short URL not found",
			Code:  "URL_NOT_FOUND",
		})
	case errors.Is(err, service.ErrCodeInUse):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: "Short code already in use",
			Code:  "SHORT_CODE_IN_USE",
		})
	case errors.Is(err, service.ErrGenerationExhausted):
		h.logger.Error("Short code generation exhausted", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "Service temporarily unavailable",
			Code:  "CODE_GENERATION_EXHAUSTED",
		})
	case errors.Is(err, repository.ErrStoreUnavailable):
		h.logger.Error("Database error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Database error",
			Code:  "DB_ERROR",
		})
	default:
		h.logger.Error("Unexpected error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Internal server error",
			Code:  "INTERNAL_ERROR",
		})
	}
	_ = c.Error(err)
}
