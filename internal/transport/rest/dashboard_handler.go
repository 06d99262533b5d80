package rest

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"cpumon/internal/chart"
	"cpumon/internal/config"
	"cpumon/internal/domain"
	"cpumon/internal/logger"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/plot/vg"
)

//go:embed templates/*.html
var templatesFS embed.FS

type ChartRenderer interface {
	Render(ctx context.Context, spec chart.Spec) error
}

type RenderObserver interface {
	ObserveRender(d time.Duration, err error)
}

type dashboardData struct {
	PageName      string
	InstantURL    string
	AverageURL    string
	Degraded      bool
	WindowMinutes int
	BucketSeconds int
	SampleCount   int
}

type DashboardHandler struct {
	svc      domain.SeriesService
	renderer ChartRenderer
	obs      RenderObserver
	cfg      *config.Config
	log      logger.Logger
	tmpl     *template.Template

	instantURL string
	averageURL string

	// renderMu keeps concurrent page requests from writing the same image
	// files at once.
	renderMu sync.Mutex
	now      func() time.Time
}

func NewDashboardHandler(cfg *config.Config, log logger.Logger, svc domain.SeriesService, renderer ChartRenderer, obs RenderObserver) (*DashboardHandler, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	instantURL, err := staticURL(cfg.StaticDir, cfg.ImageInstantPath)
	if err != nil {
		return nil, err
	}
	averageURL, err := staticURL(cfg.StaticDir, cfg.ImageAveragePath)
	if err != nil {
		return nil, err
	}

	return &DashboardHandler{
		svc:        svc,
		renderer:   renderer,
		obs:        obs,
		cfg:        cfg,
		log:        log,
		tmpl:       tmpl,
		instantURL: instantURL,
		averageURL: averageURL,
		now:        time.Now,
	}, nil
}

func (h *DashboardHandler) Index(w http.ResponseWriter, r *http.Request) {
	q, errs := parseSeriesQuery(r, h.cfg)
	if len(errs) > 0 {
		http.Error(w, "invalid window or bucket", http.StatusBadRequest)
		return
	}

	series, err := h.svc.Series(r.Context(), q.window(), q.bucket())
	if err != nil {
		h.log.Error("http: failed to load series", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	degraded := false
	if err := h.renderCharts(r.Context(), series); err != nil {
		h.log.Warn("http: chart render failed, serving degraded page", "error", err)
		degraded = true
	}

	version := strconv.FormatInt(h.now().UnixMilli(), 10)
	data := dashboardData{
		PageName:      "CPU load",
		InstantURL:    h.instantURL + "?v=" + version,
		AverageURL:    h.averageURL + "?v=" + version,
		Degraded:      degraded,
		WindowMinutes: q.Window,
		BucketSeconds: q.Bucket,
		SampleCount:   len(series.Instant),
	}

	var buf bytes.Buffer
	if err := h.tmpl.ExecuteTemplate(&buf, "index.html", data); err != nil {
		h.log.Error("http: failed to render template", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (h *DashboardHandler) renderCharts(ctx context.Context, series *domain.Series) error {
	size := vg.Length(h.cfg.ChartSizeInches) * vg.Inch
	scanSeconds := int(h.cfg.ScanPeriod / time.Second)

	specs := []chart.Spec{
		{
			Series:    series.Instant,
			Title:     "Instant CPU load",
			XLabel:    fmt.Sprintf("Scan intervals, 1 interval = %d s", scanSeconds),
			YLabel:    "CPU load, %",
			Width:     size,
			Height:    size,
			Path:      h.cfg.ImageInstantPath,
			XTickStep: h.cfg.InstantXTickStep,
		},
		{
			Series: series.Average,
			Title:  "Average CPU load",
			XLabel: fmt.Sprintf("Time, 1 interval = %d s", series.BucketSeconds),
			YLabel: "CPU load, %",
			Width:  size,
			Height: size,
			Path:   h.cfg.ImageAveragePath,
		},
	}

	h.renderMu.Lock()
	defer h.renderMu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, spec := range specs {
		g.Go(func() error {
			start := time.Now()
			err := h.renderer.Render(gctx, spec)
			if h.obs != nil {
				h.obs.ObserveRender(time.Since(start), err)
			}
			return err
		})
	}

	return g.Wait()
}

// staticURL maps a file under staticDir to its URL below /static/.
func staticURL(staticDir, path string) (string, error) {
	rel, err := filepath.Rel(staticDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("image path %q is not under static dir %q", path, staticDir)
	}
	return "/static/" + filepath.ToSlash(rel), nil
}
