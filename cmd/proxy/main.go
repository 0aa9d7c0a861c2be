package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"kvrelay/cluster"
	"kvrelay/config"
	"kvrelay/monitoring"
	"kvrelay/proxy"
	"kvrelay/server"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

func main() {
	configFile := flag.String("config", "", "Path to a JSON or YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	monitoring.SetupLogger(cfg.LogLevel, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := buildProxy(ctx, cfg)
	if err := server.Run(cfg, router, cancel); err != nil {
		logrus.WithError(err).Fatal("Server stopped")
	}
}

// buildProxy wires the forwarding handlers, metrics and upstream health reporting.
func buildProxy(ctx context.Context, cfg *config.Config) *mux.Router {
	leaderURL := config.NormalizeURL(cfg.Proxy.LeaderURL)
	readURL := config.NormalizeURL(cfg.Proxy.ReadURL)
	timeout := time.Duration(cfg.Proxy.UpstreamTimeout) * time.Second

	metrics := monitoring.NewMetrics()
	p := proxy.New(leaderURL, readURL, timeout, proxy.WithObserver(metrics))

	monitor := cluster.NewUpstreamMonitor(map[string]string{
		proxy.UpstreamLeader: leaderURL,
		proxy.UpstreamRead:   readURL,
	}, time.Duration(cfg.Proxy.HealthInterval)*time.Second, timeout)
	go monitor.Run(ctx)

	health := monitoring.NewHealthChecker()
	for _, name := range []string{proxy.UpstreamLeader, proxy.UpstreamRead} {
		health.AddCheck(name, func() monitoring.ComponentHealth {
			return upstreamHealth(ctx, monitor, name)
		})
	}

	logrus.WithFields(logrus.Fields{
		"leader_url": leaderURL,
		"read_url":   readURL,
		"timeout":    timeout,
	}).Info("Proxy configured")

	return proxy.NewRouter(proxy.NewHandlers(p), proxy.RouterOptions{
		Metrics: metrics,
		Health:  health,
	})
}

// upstreamHealth reports the last periodic probe. Without periodic checks
// every call probes the upstream again.
func upstreamHealth(ctx context.Context, monitor *cluster.UpstreamMonitor, name string) monitoring.ComponentHealth {
	status := find(monitor.Status(), name)
	if !monitor.Periodic() || !status.Checked {
		status, _ = monitor.Check(ctx, name)
	}

	details := fmt.Sprintf("%s (latency %s)", status.URL, status.Latency)
	if !status.Online {
		return monitoring.Unhealthy(details)
	}
	return monitoring.Healthy(details)
}

func find(statuses []cluster.UpstreamStatus, name string) cluster.UpstreamStatus {
	for _, s := range statuses {
		if s.Name == name {
			return s
		}
	}
	return cluster.UpstreamStatus{Name: name}
}
