package exporter

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

var landingPage = template.Must(template.New("landing").Parse(`<html>
<head><title>Docker Hub Exporter</title></head>
<body>
<h1>Docker Hub Exporter</h1>
<p><a href="{{ . }}">Metrics</a></p>
</body>
</html>
`))

// Exporter is responsible for bringing up a web server that serves the
// metrics of the collectors registered with it (e.g., see `pkg/collector`).
//
type Exporter struct {
	// ListenAddress is the full address used by prometheus
	// to listen for scraping requests.
	//
	// Examples:
	// - :8080
	// - 127.0.0.2:1313
	//
	listenAddress string

	// TelemetryPath configures the path under which
	// the prometheus metrics are reported.
	//
	// For instance:
	// - /metrics
	// - /telemetry
	//
	telemetryPath string

	// registry holds every collector exposed under the telemetry path.
	// Go runtime and process metrics are always registered.
	//
	registry *prometheus.Registry

	// listener is the TCP listener used by the webserver. `nil` if no
	// server is running.
	//
	listener net.Listener
	server   *http.Server

	healthy atomic.Bool

	log logr.Logger
}

// Option.
//
type Option func(e *Exporter)

func WithBindAddress(v string) Option {
	return func(e *Exporter) {
		e.listenAddress = v
	}
}

func WithTelemetryPath(v string) Option {
	return func(e *Exporter) {
		e.telemetryPath = v
	}
}

func WithLogger(v logr.Logger) Option {
	return func(e *Exporter) {
		e.log = v
	}
}

// New.
//
func New(opts ...Option) (*Exporter, error) {
	e := &Exporter{
		listenAddress: ":9000",
		telemetryPath: "/metrics",
		registry:      prometheus.NewRegistry(),
		log:           logr.Discard(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if len(e.telemetryPath) == 0 || e.telemetryPath[0] != '/' {
		return nil, fmt.Errorf("telemetry path '%s' must start with '/'",
			e.telemetryPath)
	}

	err := e.Register(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err != nil {
		return nil, fmt.Errorf("register runtime collectors: %w", err)
	}

	return e, nil
}

// Register adds collectors to the set of collectors served by this
// exporter.
//
func (e *Exporter) Register(cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := e.registry.Register(c); err != nil {
			return fmt.Errorf("register: %w", err)
		}
	}

	return nil
}

// Handler builds the http handler serving the landing page, the health
// check and the metrics.
//
func (e *Exporter) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), e.logRequests)
	router.SetHTMLTemplate(landingPage)

	router.GET(e.telemetryPath, gin.WrapH(promhttp.HandlerFor(
		e.registry,
		promhttp.HandlerOpts{
			ErrorLog:      &promLogger{log: e.log},
			ErrorHandling: promhttp.ContinueOnError,
		},
	)))

	router.GET("/healthz", e.healthz)

	if e.telemetryPath != "/" {
		router.GET("/", e.landing)
	}

	return router
}

// Run initiates the HTTP server to serve the metrics, returning once the
// server fails or `ctx` is cancelled, in which case the server is shut down
// gracefully and no error is returned.
//
// ps.: this is a BLOCKING method - make sure you either make use of goroutines
// to not block if needed.
//
func (e *Exporter) Run(ctx context.Context) error {
	var err error

	e.listener, err = net.Listen("tcp", e.listenAddress)
	if err != nil {
		return fmt.Errorf("listen on '%s': %w", e.listenAddress, err)
	}

	e.server = &http.Server{
		Handler:           e.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	doneChan := make(chan error, 1)

	go func() {
		defer close(doneChan)

		e.log.WithValues(
			"addr", e.listener.Addr().String(),
			"path", e.telemetryPath,
		).Info("listening")

		err := e.server.Serve(e.listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			doneChan <- fmt.Errorf(
				"failed listening on address %s: %w",
				e.listenAddress, err,
			)
		}
	}()

	e.healthy.Store(true)

	select {
	case err = <-doneChan:
		e.healthy.Store(false)
		if err != nil {
			return fmt.Errorf("donechan err: %w", err)
		}
	case <-ctx.Done():
		e.log.Info("shutting down", "reason", ctx.Err().Error())
	}

	return nil
}

// Close gracefully shuts the server down, closing its listener.
//
func (e *Exporter) Close() (err error) {
	e.healthy.Store(false)

	if e.server == nil {
		return nil
	}

	e.log.Info("closing")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}

func (e *Exporter) healthz(c *gin.Context) {
	if !e.healthy.Load() {
		c.String(http.StatusServiceUnavailable, "Unhealthy")
		return
	}

	c.String(http.StatusOK, "OK")
}

func (e *Exporter) landing(c *gin.Context) {
	c.HTML(http.StatusOK, landingPage.Name(), e.telemetryPath)
}

func (e *Exporter) logRequests(c *gin.Context) {
	start := time.Now()

	c.Next()

	e.log.V(1).Info("request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"took", time.Since(start).String(),
	)
}

// promLogger adapts our logger to the one expected by promhttp for
// reporting errors gathering metrics.
//
type promLogger struct {
	log logr.Logger
}

func (l *promLogger) Println(v ...interface{}) {
	l.log.Error(errors.New(fmt.Sprint(v...)), "serving metrics")
}
