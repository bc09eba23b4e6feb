package handlers

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Brownie44l1/effnet-api/internal/fetch"
	"github.com/Brownie44l1/effnet-api/internal/gpu"
	"github.com/Brownie44l1/effnet-api/internal/metrics"
	"github.com/Brownie44l1/effnet-api/internal/model"
	"github.com/gin-gonic/gin"
)

type Classifier interface {
	Predict(ctx context.Context, img image.Image) (model.Prediction, error)
}

type ImageSource interface {
	Image(ctx context.Context, url string) (image.Image, error)
}

type Observer interface {
	ObservePrediction(outcome string, d time.Duration)
}

type Deps struct {
	Classifier Classifier
	Images     ImageSource
	GPU        gpu.Probe
	Observer   Observer
	LabelCount int
	Logger     *slog.Logger
}

type Handler struct {
	classifier Classifier
	images     ImageSource
	gpu        gpu.Probe
	observer   Observer
	labelCount int
	logger     *slog.Logger
}

func NewHandler(deps Deps) *Handler {
	observer := deps.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Handler{
		classifier: deps.Classifier,
		images:     deps.Images,
		gpu:        deps.GPU,
		observer:   observer,
		labelCount: deps.LabelCount,
		logger:     deps.Logger,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", h.Health)
	r.POST("/predict", h.Predict)
	r.POST("/train", h.Predict)
	r.GET("/gpu_util", h.GPUUtil)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "labels": h.labelCount})
}

// Predict serves both /predict and /train. Download failures are the
// caller's fault (400); anything after a successful download is ours (500).
func (h *Handler) Predict(c *gin.Context) {
	var req model.PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.observer.ObservePrediction(metrics.OutcomeBadRequest, 0)
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request body"})
		return
	}
	if strings.TrimSpace(req.ImageURL) == "" {
		h.observer.ObservePrediction(metrics.OutcomeBadRequest, 0)
		c.JSON(http.StatusBadRequest, gin.H{"detail": "image_url is required"})
		return
	}

	logger := h.logger.With("request_id", c.GetString(requestIDKey), "image_url", req.ImageURL)
	ctx := c.Request.Context()

	img, err := h.images.Image(ctx, req.ImageURL)
	if err != nil {
		if errors.Is(err, fetch.ErrFetch) {
			logger.Info("image download failed", "error", err)
			h.observer.ObservePrediction(metrics.OutcomeFetchError, 0)
			c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("Error downloading the image: %v", err)})
			return
		}
		logger.Warn("image decode failed", "error", err)
		h.observer.ObservePrediction(metrics.OutcomeDecodeError, 0)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprintf("An error occurred during prediction: %v", err)})
		return
	}

	start := time.Now()
	pred, err := h.classifier.Predict(ctx, img)
	elapsed := time.Since(start)
	if err != nil {
		logger.Error("prediction failed", "error", err)
		h.observer.ObservePrediction(metrics.OutcomeInference, elapsed)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprintf("An error occurred during prediction: %v", err)})
		return
	}

	outcome := metrics.OutcomeOK
	if !pred.Known {
		outcome = metrics.OutcomeUnknownLabel
	}
	h.observer.ObservePrediction(outcome, elapsed)
	logger.Debug("prediction", "label", pred.Label, "index", pred.Index, "confidence", pred.Confidence, "elapsed", elapsed)

	c.JSON(http.StatusOK, pred.Response())
}

func (h *Handler) GPUUtil(c *gin.Context) {
	out, err := h.gpu.Utilization(c.Request.Context())
	if err != nil {
		h.logger.Warn("gpu utilization unavailable", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprintf("Error running nvidia-smi: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"utilization": out})
}

type nopObserver struct{}

func (nopObserver) ObservePrediction(string, time.Duration) {}
