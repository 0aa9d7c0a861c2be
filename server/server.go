package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kvrelay/config"

	"github.com/sirupsen/logrus"
)

// shutdownTimeout bounds both connection shutdown and drain.
var shutdownTimeout = 5 * time.Second

// Run serves handler until SIGINT/SIGTERM, then shuts down gracefully and
// waits for drain until the shutdown timeout.
func Run(cfg *config.Config, handler http.Handler, drain func()) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return Serve(ctx, &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}, cfg.TLS, drain)
}

// Serve runs srv until ctx is cancelled.
func Serve(ctx context.Context, srv *http.Server, tls config.TLSConfig, drain func()) error {
	errCh := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{"addr": srv.Addr, "tls": tls.Enabled}).Info("Server starting")

		var err error
		if tls.Enabled {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logrus.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if drain != nil {
		drained := make(chan struct{})
		go func() {
			drain()
			close(drained)
		}()
		select {
		case <-drained:
		case <-shutdownCtx.Done():
			logrus.Warn("Drain did not finish before shutdown timeout")
		}
	}

	logrus.Info("Server exited")
	return nil
}
