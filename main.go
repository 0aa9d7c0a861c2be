package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"kvrelay/api"
	"kvrelay/auth"
	"kvrelay/cluster"
	"kvrelay/config"
	"kvrelay/k8s"
	"kvrelay/monitoring"
	"kvrelay/replication"
	"kvrelay/server"
	"kvrelay/storage"

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

	node, err := buildNode(context.Background(), cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize node")
	}

	if err := server.Run(cfg, node.router, node.handlers.Wait); err != nil {
		logrus.WithError(err).Fatal("Server stopped")
	}
}

type node struct {
	handlers *api.Handlers
	router   *mux.Router
}

// buildNode wires storage, identity, replication and the HTTP surface.
func buildNode(ctx context.Context, cfg *config.Config) (*node, error) {
	identity := cluster.NewIdentity(cfg.Node.Name, cfg.Node.LeaderIdentity)

	replicas := cfg.Node.ReplicaSet()
	if cfg.Discovery.Enabled {
		client, err := k8s.NewClientset(cfg.Discovery.Kubeconfig)
		if err != nil {
			return nil, err
		}
		replicas, err = k8s.NewDiscoverer(client, cfg.Discovery).Replicas(ctx, cfg.Node.Name)
		if err != nil {
			return nil, err
		}
	}

	metrics := monitoring.NewMetrics()
	store := storage.NewMemoryStorage()
	metrics.RegisterStorage(store)
	metrics.RegisterNodeInfo(identity.Name(), string(identity.Role()), len(replicas))

	opts := []replication.Option{
		replication.WithObserver(metrics),
		replication.WithTimeout(time.Duration(cfg.Node.ReplicationTimeout) * time.Second),
	}

	var validator auth.Validator
	if cfg.Auth.Enabled {
		authService, err := auth.NewAuthService(&cfg.Auth)
		if err != nil {
			return nil, err
		}
		validator = authService
		if identity.IsLeader() {
			opts = append(opts, replication.WithTokenSource(authService.ReplicatorToken(identity.Name())))
		}
	}

	replicator := replication.NewReplicator(replicas, opts...)
	handlers := api.NewHandlers(store, replicator, identity, cfg.Node.ReplicaCount)

	health := monitoring.NewHealthChecker()
	health.AddCheck("storage", func() monitoring.ComponentHealth {
		return monitoring.Healthy(fmt.Sprintf("%d keys", store.Len()))
	})
	health.AddCheck("replication", func() monitoring.ComponentHealth {
		if !identity.IsLeader() {
			return monitoring.Healthy("follower")
		}
		if handlers.ShouldReplicate() && len(replicas) == 0 {
			return monitoring.Unhealthy("leader has no replica addresses")
		}
		return monitoring.Healthy(fmt.Sprintf("leader, %d replicas", len(replicas)))
	})

	logrus.WithFields(logrus.Fields{
		"node":          identity.Name(),
		"role":          identity.Role(),
		"replicas":      replicas,
		"replica_count": cfg.Node.ReplicaCount,
		"replicating":   handlers.ShouldReplicate(),
		"auth":          cfg.Auth.Enabled,
	}).Info("Store node configured")

	return &node{
		handlers: handlers,
		router: api.NewRouter(handlers, api.RouterOptions{
			Validator: validator,
			Metrics:   metrics,
			Health:    health,
		}),
	}, nil
}
