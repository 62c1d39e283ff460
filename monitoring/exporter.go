package monitoring

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus is the configuration of the metrics exporter.
//
//nolint:lll
type Prometheus struct {
	Enable bool   `long:"enable" description:"Export prometheus metrics."`
	Listen string `long:"listen" description:"The interface the exporter listens on for /metrics requests."`
}

// Exporter serves the metrics of a gatherer over HTTP at /metrics.
type Exporter struct {
	cfg      Prometheus
	gatherer prometheus.Gatherer

	started sync.Once
	stopped sync.Once

	listener net.Listener
	server   *http.Server
	wg       sync.WaitGroup
}

// NewExporter creates an exporter for the given gatherer. Start must be
// called to begin serving.
func NewExporter(cfg Prometheus, gatherer prometheus.Gatherer) *Exporter {
	return &Exporter{
		cfg:      cfg,
		gatherer: gatherer,
	}
}

// ExportPrometheusMetrics starts an exporter serving gatherer on cfg.Listen.
func ExportPrometheusMetrics(cfg Prometheus,
	gatherer prometheus.Gatherer) (*Exporter, error) {

	e := NewExporter(cfg, gatherer)
	if err := e.Start(); err != nil {
		return nil, err
	}

	return e, nil
}

// Start binds the listen address and launches the HTTP server.
func (e *Exporter) Start() error {
	var err error
	e.started.Do(func() {
		e.listener, err = net.Listen("tcp", e.cfg.Listen)
		if err != nil {
			return
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(
			e.gatherer, promhttp.HandlerOpts{},
		))
		e.server = &http.Server{Handler: mux}

		log.Infof("Prometheus exporter started on %v/metrics",
			e.listener.Addr())

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()

			err := e.server.Serve(e.listener)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("Prometheus exporter failed: %v", err)
			}
		}()
	})

	return err
}

// Addr returns the address the exporter is bound to, or nil before Start.
func (e *Exporter) Addr() net.Addr {
	if e.listener == nil {
		return nil
	}

	return e.listener.Addr()
}

// Stop shuts the HTTP server down and waits for it to exit.
func (e *Exporter) Stop(ctx context.Context) error {
	var err error
	e.stopped.Do(func() {
		if e.server == nil {
			return
		}

		log.Info("Prometheus exporter shutting down")

		err = e.server.Shutdown(ctx)
		e.wg.Wait()
	})

	return err
}
