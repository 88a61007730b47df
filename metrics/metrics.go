// Package metrics exports controller diagnostics to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"hailfire/controller"
)

const Namespace = "hailfire"

// Source returns a consistent snapshot of the controller counters. It is
// called from the scrape goroutine and must do its own locking.
type Source func() controller.Stats

// LinkSource returns the transactions and bits shifted by a bus master
type LinkSource func() (transactions uint32, bits uint64)

type counter struct {
	subsystem, name, help string
	value                 func(controller.Stats) uint32
}

var controllerCounters = []counter{
	{"decoder", "words_total", "Words received on the link.", func(s controller.Stats) uint32 { return s.Decoder.Words }},
	{"decoder", "frames_total", "Frames completed, zero-length ones included.", func(s controller.Stats) uint32 { return s.Decoder.Frames }},
	{"decoder", "aborted_frames_total", "Frames cut short by deselection.", func(s controller.Stats) uint32 { return s.Decoder.Aborted }},
	{"decoder", "watchdog_resets_total", "Frames abandoned by the stall watchdog.", func(s controller.Stats) uint32 { return s.Decoder.WatchdogResets }},
	{"dispatch", "reads_total", "Register reads served.", func(s controller.Stats) uint32 { return s.Dispatch.Reads }},
	{"dispatch", "sentinel_reads_total", "Reads answered with the sentinel.", func(s controller.Stats) uint32 { return s.Dispatch.SentinelReads }},
	{"dispatch", "writes_total", "Register writes applied.", func(s controller.Stats) uint32 { return s.Dispatch.Writes }},
	{"dispatch", "short_writes_total", "Writes shorter than their register.", func(s controller.Stats) uint32 { return s.Dispatch.ShortWrites }},
	{"dispatch", "discarded_writes_total", "Writes to unknown or read-only keys.", func(s controller.Stats) uint32 { return s.Dispatch.DiscardedWrites }},
	{"dispatch", "empty_writes_total", "Zero-length writes ignored.", func(s controller.Stats) uint32 { return s.Dispatch.EmptyWrites }},
	{"controller", "resets_total", "Reset pulses handled.", func(s controller.Stats) uint32 { return s.Resets }},
	{"controller", "adc_errors_total", "Failed MCP3008 conversions.", func(s controller.Stats) uint32 { return s.ADCErrors }},
}

// RegisterController registers one counter per controller statistic
func RegisterController(reg prometheus.Registerer, src Source) error {
	for _, c := range controllerCounters {
		value := c.value
		cf := prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: c.subsystem,
			Name:      c.name,
			Help:      c.help,
		}, func() float64 { return float64(value(src())) })
		if err := reg.Register(cf); err != nil {
			return err
		}
	}
	return nil
}

// RegisterLink registers the bus master transfer counters
func RegisterLink(reg prometheus.Registerer, src LinkSource) error {
	transactions := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "link",
		Name:      "transactions_total",
		Help:      "Chip-select framed transactions run by the master.",
	}, func() float64 {
		n, _ := src()
		return float64(n)
	})
	bits := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "link",
		Name:      "bits_total",
		Help:      "Bits shifted by the master.",
	}, func() float64 {
		_, n := src()
		return float64(n)
	})
	for _, c := range []prometheus.Collector{transactions, bits} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the metrics gathered from g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
