package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"

	"gungnir/internal/engine"
	"gungnir/internal/lob"
	gungnirNet "gungnir/internal/net"
)

func main() {
	address := flag.String("address", "0.0.0.0", "Address to listen on")
	port := flag.Int("port", 9001, "Port to listen on")
	metricsPort := flag.Int("metrics-port", 9102, "Prometheus metrics port (0 to disable)")
	cpu := flag.Int("cpu", -1, "CPU to pin the process to (-1 to not pin)")
	minPrice := flag.Float64("min-price", 0, "Lowest accepted limit price")
	maxPrice := flag.Float64("max-price", 0, "Highest accepted limit price (0 for unbounded)")
	flag.Parse()

	// Pin before any goroutine spawns an OS thread so children inherit
	// the affinity mask.
	if *cpu >= 0 {
		runtime.LockOSThread()
		var set unix.CPUSet
		set.Zero()
		set.Set(*cpu)
		if err := unix.SchedSetaffinity(0, &set); err != nil {
			log.Fatal().Err(err).Int("cpu", *cpu).Msg("unable to pin cpu")
		}
		log.Info().Int("cpu", *cpu).Msg("pinned")
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	// Setup the TCP server and the matching engine.
	eng := engine.New(engine.Equities)
	if m, ok := eng.Matching(engine.Equities); ok {
		upper := lob.Price(math.MaxFloat64)
		if *maxPrice > 0 {
			upper = lob.Price(*maxPrice)
		}
		m.SetPriceBounds(lob.Price(*minPrice), upper)
	}
	srv := gungnirNet.New(*address, *port, eng)
	eng.SetReporter(srv)

	if *metricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			addr := fmt.Sprintf("%s:%d", *address, *metricsPort)
			log.Info().Str("address", addr).Msg("metrics listening")
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	go srv.Run(ctx)
	// Block on running the server.
	<-ctx.Done()
}
