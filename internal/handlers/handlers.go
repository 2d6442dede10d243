package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/image-classifier/internal/imageproc"
	"github.com/Brownie44l1/image-classifier/internal/model"
	"github.com/Brownie44l1/image-classifier/internal/pipeline"
)

const maxUploadBytes = 10 << 20

// Classifier is what the handlers need from the pipeline.
type Classifier interface {
	ClassifyTensor(ctx context.Context, tensor []float32, k int) ([]model.Classification, error)
}

// Submitter queues image classifications. *pipeline.Dispatcher implements it.
type Submitter interface {
	Submit(ctx context.Context, req pipeline.Request) (<-chan pipeline.Outcome, error)
	Stats() pipeline.Stats
}

type Handler struct {
	classifier Classifier
	dispatcher Submitter
	timeout    time.Duration
}

func NewHandler(classifier Classifier, dispatcher Submitter, timeout time.Duration) *Handler {
	return &Handler{
		classifier: classifier,
		dispatcher: dispatcher,
		timeout:    timeout,
	}
}

// Routes registers every endpoint on r.
func (h *Handler) Routes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/metrics", h.Metrics).Methods(http.MethodGet)
	r.HandleFunc("/predict", h.Predict).Methods(http.MethodPost)
	r.HandleFunc("/predict/image", h.PredictFromImage).Methods(http.MethodPost)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dispatcher.Stats())
}

// Predict classifies a tensor that the caller already extracted.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	topK, err := parseTop(r)
	if err != nil {
		sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	var req model.PredictionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&req); err != nil {
		sendErrorResponse(w, "invalid_request", "Invalid JSON", http.StatusBadRequest)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	results, err := h.classifier.ClassifyTensor(ctx, req.Image, topK)
	if err != nil {
		h.sendClassifyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(results, topK))
}

// PredictFromImage classifies an uploaded image sent as the multipart field "image".
func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	topK, err := parseTop(r)
	if err != nil {
		sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		sendErrorResponse(w, "invalid_request", "Failed to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		sendErrorResponse(w, "invalid_request", "No image file provided. Use 'image' as the form field name", http.StatusBadRequest)
		return
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		sendErrorResponse(w, "invalid_image", "Invalid image format. Supported: JPEG, PNG, WebP, BMP", http.StatusBadRequest)
		return
	}
	log.Debug().Msgf("Received %s (%s, %d bytes, %dx%d)", header.Filename, format, header.Size,
		img.Bounds().Dx(), img.Bounds().Dy())

	raw, err := imageproc.FromImage(img)
	if err != nil {
		h.sendClassifyError(w, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	ch, err := h.dispatcher.Submit(ctx, pipeline.Request{Image: raw, TopK: topK})
	if err != nil {
		h.sendClassifyError(w, err)
		return
	}

	var outcome pipeline.Outcome
	select {
	case outcome = <-ch:
	case <-ctx.Done():
		h.sendClassifyError(w, ctx.Err())
		return
	}

	if outcome.Status != pipeline.StatusSucceeded {
		h.sendClassifyError(w, outcome.Err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(outcome.Ranked, topK))
}

func (h *Handler) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.timeout)
}

func parseTop(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("top")
	if raw == "" {
		return 1, nil
	}
	k, err := strconv.Atoi(raw)
	if err != nil || k < 1 {
		return 0, fmt.Errorf("invalid top: %q", raw)
	}
	return k, nil
}

func toResponse(results []model.Classification, topK int) model.PredictionResponse {
	resp := model.PredictionResponse{
		Class:      results[0].Label,
		Confidence: results[0].Confidence,
	}
	if topK > 1 {
		resp.Predictions = results
	}
	return resp
}

func (h *Handler) sendClassifyError(w http.ResponseWriter, err error) {
	switch {
	case model.IsClientError(err):
		sendErrorResponse(w, "invalid_image", err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.DeadlineExceeded):
		sendErrorResponse(w, "timeout", "Classification timed out", http.StatusGatewayTimeout)
	case errors.Is(err, context.Canceled), errors.Is(err, pipeline.ErrDispatcherClosed):
		sendErrorResponse(w, "unavailable", "Classification not attempted", http.StatusServiceUnavailable)
	default:
		log.Error().Err(err).Msg("Prediction error")
		sendErrorResponse(w, "processing_error", "Prediction failed", http.StatusInternalServerError)
	}
}

func sendErrorResponse(w http.ResponseWriter, code, message string, status int) {
	writeJSON(w, status, model.ErrorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

// CORS allows browser clients on any origin.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
