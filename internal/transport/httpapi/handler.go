package httpapi

import (
	"net/http"
	"strings"

	"github.com/basel-ax/watchimage/internal/domain"
	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
)

type fetchImageRequest struct {
	Manufacturer    string `json:"manufacturer"`
	Model           string `json:"model"`
	ReferenceNumber string `json:"referenceNumber"`
}

type fetchImageResponse struct {
	ImageURL string `json:"imageUrl"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ImageHandler serves watch image lookups
type ImageHandler struct {
	resolver domain.ImageResolver
	logger   *log.Logger
}

// NewImageHandler creates a new image handler
func NewImageHandler(resolver domain.ImageResolver, logger *log.Logger) *ImageHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &ImageHandler{resolver: resolver, logger: logger}
}

// FetchWatchImage handles POST /api/fetch-watch-image
func (h *ImageHandler) FetchWatchImage(c echo.Context) error {
	var body fetchImageRequest
	if err := c.Bind(&body); err != nil {
		h.logger.Debug("invalid request body", "error", err)
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Manufacturer and model are required"})
	}

	req := domain.ImageRequest{
		Manufacturer:    strings.TrimSpace(body.Manufacturer),
		Model:           strings.TrimSpace(body.Model),
		ReferenceNumber: strings.TrimSpace(body.ReferenceNumber),
	}
	if req.Manufacturer == "" || req.Model == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Manufacturer and model are required"})
	}

	h.logger.Info("image fetch requested", "manufacturer", req.Manufacturer, "model", req.Model, "reference", req.ReferenceNumber)

	imageURL, ok := h.resolver.Resolve(c.Request().Context(), req)
	if !ok {
		return c.JSON(http.StatusNotFound, errorResponse{
			Error:   "Could not find official image for this watch",
			Details: "Tried pattern matching and OpenAI fallback",
		})
	}

	return c.JSON(http.StatusOK, fetchImageResponse{ImageURL: imageURL})
}

// Health handles GET /healthz
func (h *ImageHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
