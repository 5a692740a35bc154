/*
 * kernelsim - Main process.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// kernelsim runs a synthetic process kernel: a configurable number of
// cores dispatch auto-generated processes against a
// demand-paged memory manager until told to stop. This is wiring only —
// there is no interactive shell here, by design.
package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	getopt "github.com/pborman/getopt/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kernelsim/backingstore"
	"kernelsim/config"
	"kernelsim/interpreter"
	"kernelsim/logger"
	"kernelsim/memory"
	"kernelsim/scheduler"
	"kernelsim/stats"
)

const tickUnit = 10 * time.Millisecond

func main() {
	optConfig := getopt.StringLong("config", 'c', "kernelsim.cfg", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optStore := getopt.StringLong("store", 's', "kernelsim.store", "Backing store file")
	optMetrics := getopt.StringLong("metrics-addr", 'm', "", "Prometheus metrics listen address (disabled if empty)")
	optDebug := getopt.BoolLong("debug", 'd', "Echo log records to stderr")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var out io.Writer = os.Stdout
	if *optLogFile != "" {
		file, err := os.Create(*optLogFile)
		if err != nil {
			slog.Error("could not create log file", "path", *optLogFile, "err", err)
			os.Exit(1)
		}
		out = file
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelInfo)
	debug := *optDebug
	Logger := slog.New(logger.NewHandler(out, &slog.HandlerOptions{Level: programLevel}, &debug))
	slog.SetDefault(Logger)

	Logger.Info("kernelsim started")

	cfg, err := config.LoadFile(*optConfig)
	if err != nil {
		Logger.Error("loading configuration", "err", err)
		os.Exit(1)
	}

	store, err := backingstore.Open(*optStore, cfg.MemPerFrame)
	if err != nil {
		Logger.Error("opening backing store", "err", err)
		os.Exit(1)
	}

	mm := memory.New(cfg.MaxOverallMem, cfg.MemPerFrame, store)
	interp := interpreter.New(mm, tickUnit)
	counters := stats.NewCounters(cfg.NumCPU)
	registry := stats.NewRegistry(counters, mm)

	if *optMetrics != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(registry)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: *optMetrics, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				Logger.Error("metrics server stopped", "err", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			server.Shutdown(ctx)
		}()
		Logger.Info("metrics listening", "addr", *optMetrics)
	}

	sched := scheduler.New(cfg, mm, interp, counters, tickUnit)
	sched.Start()
	Logger.Info("scheduler started", "numCPU", cfg.NumCPU, "policy", cfg.Scheduler)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	Logger.Info("shutting down")
	sched.Stop()
	Logger.Info("scheduler stopped")
}
