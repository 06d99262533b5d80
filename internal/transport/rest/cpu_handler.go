package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"cpumon/internal/config"
	"cpumon/internal/domain"
	"cpumon/internal/logger"
)

type LatestReader interface {
	Latest(ctx context.Context) (*domain.Sample, error)
}

type seriesQuery struct {
	Window int `validate:"min=1,max=10080"`
	Bucket int `validate:"min=1,max=3600"`
}

func (q seriesQuery) window() time.Duration { return time.Duration(q.Window) * time.Minute }
func (q seriesQuery) bucket() time.Duration { return time.Duration(q.Bucket) * time.Second }

func parseSeriesQuery(r *http.Request, cfg *config.Config) (seriesQuery, map[string]string) {
	q := seriesQuery{
		Window: int(cfg.SliceWindow / time.Minute),
		Bucket: int(cfg.AverageBucket / time.Second),
	}

	errs := make(map[string]string)
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"window", &q.Window},
		{"bucket", &q.Bucket},
	} {
		raw := r.URL.Query().Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			errs[p.name] = "The " + p.name + " must be an integer."
			continue
		}
		*p.dst = n
	}
	if len(errs) > 0 {
		return q, errs
	}

	return q, ValidateStruct(q)
}

type CPUHandler struct {
	svc      domain.SeriesService
	mirror   LatestReader
	fallback LatestReader
	cfg      *config.Config
	log      logger.Logger
}

// NewCPUHandler serves the JSON API. mirror may be nil; fallback reads from
// the store.
func NewCPUHandler(cfg *config.Config, log logger.Logger, svc domain.SeriesService, mirror, fallback LatestReader) *CPUHandler {
	return &CPUHandler{
		svc:      svc,
		mirror:   mirror,
		fallback: fallback,
		cfg:      cfg,
		log:      log,
	}
}

func (h *CPUHandler) Series(w http.ResponseWriter, r *http.Request) {
	q, errs := parseSeriesQuery(r, h.cfg)
	if len(errs) > 0 {
		JSONValidationError(w, errs)
		return
	}

	series, err := h.svc.Series(r.Context(), q.window(), q.bucket())
	if err != nil {
		h.log.Error("http: failed to load series", "error", err)
		JSONError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	JSONSuccess(w, http.StatusOK, APIResponse{
		Message: "OK",
		Data:    series,
	})
}

func (h *CPUHandler) Latest(w http.ResponseWriter, r *http.Request) {
	sample, err := h.latest(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrSampleNotFound) {
			JSONError(w, http.StatusNotFound, "No samples recorded yet")
			return
		}
		h.log.Error("http: failed to load latest sample", "error", err)
		JSONError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	JSONSuccess(w, http.StatusOK, APIResponse{
		Message: "OK",
		Data:    sample,
	})
}

func (h *CPUHandler) latest(ctx context.Context) (*domain.Sample, error) {
	if h.mirror != nil {
		sample, err := h.mirror.Latest(ctx)
		if err == nil {
			return sample, nil
		}
		if !errors.Is(err, domain.ErrSampleNotFound) {
			h.log.Warn("http: mirror lookup failed, reading store", "error", err)
		}
	}

	return h.fallback.Latest(ctx)
}
