package server

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sanonone/embedreduce/internal/config"
	"github.com/sanonone/embedreduce/pkg/reduce"
)

var errUnsupportedMediaType = errors.New("unsupported media type")

// handlePCA is POST /pca: validate, reduce, answer with the reduced matrix or {"error": ...}.
func (s *Server) handlePCA(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r.Context())
	log.Info("PCA endpoint called")

	if !isJSONContentType(r.Header.Get("Content-Type")) {
		err := &reduce.Error{
			Kind:    reduce.KindTransport,
			Message: "Content-Type must be application/json",
			Err:     errUnsupportedMediaType,
		}
		reduce.Record("http", nil, nil, err)
		s.writeReduceError(w, r, err)
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.cfg.HTTP.MaxBodyBytes)
	batch, err := s.reducer.Decode(body)
	if err != nil {
		reduce.Record("http", nil, nil, err)
		s.writeReduceError(w, r, err)
		return
	}

	log.Info("PCA input",
		"samples", batch.NSamples,
		"features", batch.NFeatures,
		"n_components", batch.NComponents,
	)

	res, err := s.reducer.Reduce(r.Context(), batch)
	reduce.Record("http", batch, res, err)
	if err != nil {
		s.writeReduceError(w, r, err)
		return
	}

	log.Info("PCA reduction successful",
		"rows", len(res.Reduced),
		"cols", res.Model.NComponents,
		"explained_variance_ratio", res.Model.TotalExplainedVarianceRatio(),
		"compute", res.Duration.String(),
	)
	s.writeHTTPResponse(w, http.StatusOK, res.Reduced)
}

// handleSchema is GET /pca/schema.
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(s.reducer.Validator().Schema())
}

type healthResponse struct {
	Status            string  `json:"status"`
	Version           string  `json:"version"`
	DefaultComponents int     `json:"default_components"`
	MaxConcurrent     int     `json:"max_concurrent"`
	CPU               CPUInfo `json:"cpu"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeHTTPResponse(w, http.StatusOK, healthResponse{
		Status:            "ok",
		Version:           Version,
		DefaultComponents: s.reducer.Validator().DefaultComponents(),
		MaxConcurrent:     s.reducer.MaxConcurrent(),
		CPU:               DetectCPU(),
	})
}

func metricsHandler() http.Handler {
	return promhttp.Handler()
}

// writeReduceError logs err and answers with {"error": ...}. Under the lenient
// policy every handled failure is sent with 200.
func (s *Server) writeReduceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := requestLogger(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("Error during PCA reduction", "kind", reduce.KindOf(err), "error", err)
	} else {
		log.Warn("Rejected PCA request", "kind", reduce.KindOf(err), "error", err)
	}

	if s.cfg.Reduce.ErrorStatus == config.StatusLenient {
		status = http.StatusOK
	}
	s.writeHTTPError(w, status, err.Error())
}

// statusFor maps a reduction failure to its strict-mode status code.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	}
	switch reduce.KindOf(err) {
	case reduce.KindValidation, reduce.KindTransport:
		return http.StatusBadRequest
	case reduce.KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// isJSONContentType accepts a missing Content-Type, application/json and +json media types.
func isJSONContentType(header string) bool {
	if header == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func (s *Server) writeHTTPResponse(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeHTTPError(w http.ResponseWriter, statusCode int, message string) {
	s.writeHTTPResponse(w, statusCode, map[string]string{"error": message})
}
