package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kvrelay/auth"
	"kvrelay/config"
	"kvrelay/proxy"
	"kvrelay/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testNode struct {
	*node
	server *httptest.Server
	client *testutils.Client
}

func startNode(t *testing.T, name string, replicas []string, replicaCount int) *testNode {
	t.Helper()
	return startNodeWith(t, name, replicas, replicaCount, config.AuthConfig{})
}

func startNodeWith(t *testing.T, name string, replicas []string, replicaCount int, authCfg config.AuthConfig) *testNode {
	t.Helper()
	cfg := config.Default()
	cfg.Node.Name = name
	cfg.Node.Replicas = replicas
	cfg.Node.ReplicaCount = replicaCount
	if authCfg.Enabled {
		cfg.Auth = authCfg
	}
	require.NoError(t, cfg.Validate())

	n, err := buildNode(context.Background(), cfg)
	require.NoError(t, err)

	srv := httptest.NewServer(n.router)
	t.Cleanup(srv.Close)
	return &testNode{node: n, server: srv, client: testutils.NewClient(srv.URL)}
}

func unreachableURL() string {
	s := httptest.NewServer(http.NotFoundHandler())
	u := s.URL
	s.Close()
	return u
}

func startCluster(t *testing.T) (*testNode, []*testNode) {
	t.Helper()
	followers := []*testNode{
		startNode(t, "kvstore-1", nil, 3),
		startNode(t, "kvstore-2", nil, 3),
	}
	leader := startNode(t, "kvstore-0", []string{followers[0].server.URL, followers[1].server.URL}, 3)
	return leader, followers
}

func TestIntegration_LeaderScenario(t *testing.T) {
	leader, _ := startCluster(t)
	c := leader.client

	status, body := c.Put(t, "a", "1")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Key 'a' added/updated successfully.", body["message"])

	status, body = c.Get(t, "a")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]string{"key": "a", "value": "1"}, body)

	status, _ = c.Delete(t, "a")
	require.Equal(t, http.StatusOK, status)

	status, body = c.Get(t, "a")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Key not found.", body["detail"])

	status, _ = c.Delete(t, "a")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestIntegration_ReplicationReachesFollowers(t *testing.T) {
	leader, followers := startCluster(t)

	status, _ := leader.client.Put(t, "k", "v")
	require.Equal(t, http.StatusOK, status)
	leader.handlers.Wait()

	for _, f := range followers {
		status, body := f.client.Get(t, "k")
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "v", body["value"])
	}

	status, _ = leader.client.Delete(t, "k")
	require.Equal(t, http.StatusOK, status)
	leader.handlers.Wait()

	for _, f := range followers {
		status, _ := f.client.Get(t, "k")
		assert.Equal(t, http.StatusNotFound, status)
	}
}

func TestIntegration_AuthenticatedReplication(t *testing.T) {
	authCfg := testutils.AuthConfig(t)
	followers := []*testNode{
		startNodeWith(t, "kvstore-1", nil, 3, authCfg),
		startNodeWith(t, "kvstore-2", nil, 3, authCfg),
	}
	leader := startNodeWith(t, "kvstore-0", []string{followers[0].server.URL, followers[1].server.URL}, 3, authCfg)

	authService, err := auth.NewAuthService(&authCfg)
	require.NoError(t, err)
	token, err := authService.GenerateToken("client", []string{string(auth.RoleRead), string(auth.RoleWrite)})
	require.NoError(t, err)

	status, _ := leader.client.Put(t, "k", "v")
	require.Equal(t, http.StatusUnauthorized, status)

	leader.client.Token = token
	status, _ = leader.client.Put(t, "k", "v")
	require.Equal(t, http.StatusOK, status)
	leader.handlers.Wait()

	for _, f := range followers {
		f.client.Token = token
		status, body := f.client.Get(t, "k")
		assert.Equal(t, http.StatusOK, status, "replicator token accepted by %s", f.server.URL)
		assert.Equal(t, "v", body["value"])
	}

	status, _ = leader.client.Delete(t, "k")
	require.Equal(t, http.StatusOK, status)
	leader.handlers.Wait()

	for _, f := range followers {
		status, _ := f.client.Get(t, "k")
		assert.Equal(t, http.StatusNotFound, status)
	}
}

func TestIntegration_FollowerWritesStayLocal(t *testing.T) {
	leader, followers := startCluster(t)

	status, _ := followers[0].client.Put(t, "local", "only")
	require.Equal(t, http.StatusOK, status)
	followers[0].handlers.Wait()

	status, _ = leader.client.Get(t, "local")
	assert.Equal(t, http.StatusNotFound, status, "followers never replicate")
	status, _ = followers[1].client.Get(t, "local")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestIntegration_UnreachableReplicaDoesNotFailWrites(t *testing.T) {
	follower := startNode(t, "kvstore-1", nil, 3)
	leader := startNode(t, "kvstore-0", []string{follower.server.URL, unreachableURL()}, 3)

	status, _ := leader.client.Put(t, "k", "v")
	assert.Equal(t, http.StatusOK, status)

	status, _ = leader.client.Delete(t, "k")
	assert.Equal(t, http.StatusOK, status)

	leader.handlers.Wait()
}

func TestIntegration_ThroughProxy(t *testing.T) {
	leader, followers := startCluster(t)

	p := proxy.New(leader.server.URL, followers[0].server.URL, 2*time.Second)
	front := httptest.NewServer(proxy.NewRouter(proxy.NewHandlers(p), proxy.RouterOptions{}))
	defer front.Close()
	c := testutils.NewClient(front.URL)

	status, _ := c.Get(t, "never-written")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = c.Put(t, "a", "1")
	require.Equal(t, http.StatusOK, status)
	leader.handlers.Wait()

	status, body := c.Get(t, "a")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]string{"key": "a", "value": "1"}, body)

	status, _ = c.Delete(t, "a")
	require.Equal(t, http.StatusOK, status)
	leader.handlers.Wait()

	status, _ = c.Get(t, "a")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = c.Delete(t, "a")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestIntegration_ProxyLeaderDown(t *testing.T) {
	follower := startNode(t, "kvstore-1", nil, 3)

	p := proxy.New(unreachableURL(), follower.server.URL, time.Second)
	front := httptest.NewServer(proxy.NewRouter(proxy.NewHandlers(p), proxy.RouterOptions{}))
	defer front.Close()
	c := testutils.NewClient(front.URL)

	status, body := c.Put(t, "a", "1")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, body["detail"], "Request failed")

	status, _ = c.Get(t, "a")
	assert.Equal(t, http.StatusNotFound, status, "reads still reach the read target")
}
