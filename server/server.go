package server

import (
	"context"
	"fmt"
	stdlog "log"
	"log/slog"
	"net/http"
	"time"

	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/royalcat/autobuild/placement"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const MaxBodySize = 32 * 1000 * 1000 // 32MB

// LayoutTimeout bounds a single placement run.
const LayoutTimeout = time.Minute

var meter = otel.Meter("github.com/royalcat/autobuild/server")

func Run(ctx context.Context, address string, base placement.Config) error {
	tel, err := setupTelemetry(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize otel metrics: %w", err)
	}

	log := slog.Default()

	handler, err := NewHandler(ctx, base)
	if err != nil {
		return err
	}

	server := &fasthttp.Server{
		ReadTimeout:        10 * time.Second,
		MaxRequestBodySize: MaxBodySize,
		Handler:            handler,
	}

	go func() {
		log.Info("Server listening", "address", address)
		if err := server.ListenAndServe(address); err != http.ErrServerClosed && err != nil {
			stdlog.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	slog.Info("Server started")

	// wait cancel
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		return err
	}
	return tel.shutdown(shutdownCtx)
}

// NewHandler routes the layout API. base is used for every request field
// the client leaves out. Runs in flight are canceled with ctx.
func NewHandler(ctx context.Context, base placement.Config) (fasthttp.RequestHandler, error) {
	s, err := newServer(ctx, base)
	if err != nil {
		return nil, err
	}

	r := router.New()
	r.POST("/layout", s.LayoutHandler)
	r.GET("/healthz", s.HealthHandler)
	r.Handle(http.MethodGet, "/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))

	return r.Handler, nil
}

type server struct {
	ctx  context.Context
	base placement.Config
	log  *slog.Logger

	metricLayoutCallCount metric.Int64Counter
	metricLayoutErrors    metric.Int64Counter
}

func newServer(ctx context.Context, base placement.Config) (*server, error) {
	if _, err := base.Validate(); err != nil {
		return nil, fmt.Errorf("server defaults: %w", err)
	}

	metricLayoutCallCount, err := meter.Int64Counter("http_layout_call_total")
	if err != nil {
		return nil, err
	}
	metricLayoutErrors, err := meter.Int64Counter("http_layout_error_total")
	if err != nil {
		return nil, err
	}

	return &server{
		ctx:  ctx,
		base: base,
		log:  slog.Default().With("component", "server"),

		metricLayoutCallCount: metricLayoutCallCount,
		metricLayoutErrors:    metricLayoutErrors,
	}, nil
}

func (s *server) LayoutHandler(ctx *fasthttp.RequestCtx) {
	s.metricLayoutCallCount.Add(ctx, 1)

	job, err := parseLayoutRequest(ctx.Request.Body(), s.base)
	if err != nil {
		s.fail(ctx, err)
		return
	}

	engine, err := placement.NewEngine(job.config, placement.WithLogger(s.log))
	if err != nil {
		s.fail(ctx, err)
		return
	}

	runCtx, cancel := context.WithTimeout(s.ctx, LayoutTimeout)
	defer cancel()

	layout, err := engine.Place(runCtx, job.parcel, job.restricted)
	if err != nil {
		s.fail(ctx, err)
		return
	}

	data, err := marshalLayout(layout)
	if err != nil {
		s.fail(ctx, err)
		return
	}

	ctx.Response.Header.SetContentType("application/json")
	ctx.Response.SetStatusCode(http.StatusOK)
	ctx.Response.SetBody(data)
}

func (s *server) HealthHandler(ctx *fasthttp.RequestCtx) {
	ctx.Response.SetStatusCode(http.StatusOK)
	ctx.Response.SetBodyString("ok")
}

func (s *server) fail(ctx *fasthttp.RequestCtx, err error) {
	code := statusCode(err)
	s.metricLayoutErrors.Add(ctx, 1, metric.WithAttributes(attribute.Int("code", code)))
	if code >= http.StatusInternalServerError {
		s.log.Error("Layout request failed", "error", err)
	} else {
		s.log.Debug("Layout request rejected", "error", err, "code", code)
	}

	ctx.Response.Header.SetContentType("application/json")
	ctx.Response.SetStatusCode(code)
	ctx.Response.SetBody(marshalError(err))
}
