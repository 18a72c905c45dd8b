// Command psync-server accepts admitted peers over a TLS WebSocket-style
// endpoint, spawns and supervises at most one child process per peer, and
// streams its output back as framed messages.
package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	goerrors "github.com/go-errors/errors"
	"github.com/integrii/flaggy"

	"github.com/go-psyncd/psyncd/internal/config"
	"github.com/go-psyncd/psyncd/internal/dispatch"
	"github.com/go-psyncd/psyncd/internal/logging"
	"github.com/go-psyncd/psyncd/internal/session"
	"github.com/go-psyncd/psyncd/internal/sigctl"
	"github.com/go-psyncd/psyncd/internal/transport"
)

var version = "unversioned"

func main() {
	useBaseEnv := false

	flaggy.SetName("psync-server")
	flaggy.SetDescription("Server for remote execution of synchronized build artifacts.")
	flaggy.DefaultParser.AdditionalHelpPrepend = "" +
		"In addition to the flags below, the server is configured through environment\n" +
		"variables: PSYNC_SERVER_IP, PSYNC_SERVER_PORT, PSYNC_ORIGINS, PSYNC_LOG,\n" +
		"PSYNC_USER, SSL_CERT_PATH, SSL_KEY_PATH."
	flaggy.Bool(&useBaseEnv, "E", "use-base-env", "Merge the server's own environment into each spawned child.")
	flaggy.SetVersion(version)
	flaggy.Parse()

	cfg, err := config.LoadServer(useBaseEnv)
	if err != nil {
		log.Fatalf("psync-server: invalid configuration: %s", err)
	}

	logger := logging.New("server", version)

	table := session.New()

	addr := cfg.BindHost + ":" + strconv.Itoa(cfg.BindPort)
	srv, err := transport.New(logger, addr, cfg.CertPath, cfg.KeyPath, cfg.Allowlist, func(conn *transport.Conn) {
		handler := dispatch.New(conn, table, logger, cfg.InheritBaseEnv, cfg.TargetUser)
		if err := handler.Serve(); err != nil {
			logger.WithError(err).Warn("connection handler exited with error")
		}
	})
	if err != nil {
		logger.WithError(goerrors.Wrap(err, 0)).Fatal("psync-server: failed to start")
	}

	sigctl.Watch(
		func() {
			logger.Warn("psync-server: received interrupt, shutting down gracefully")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			teardownSessions(table)
			_ = srv.Shutdown(ctx)
			os.Exit(130)
		},
		func() {
			logger.Warn("psync-server: received second interrupt, forcing exit")
			os.Exit(130)
		},
	)

	logger.Infof("psync-server: listening on %s", addr)
	if err := srv.Serve(); err != nil {
		logger.WithError(err).Fatal("psync-server: server loop exited with error")
	}
}

func teardownSessions(table *session.Table) {
	for _, peer := range table.Peers() {
		entry, ok := table.Get(peer)
		if !ok {
			continue
		}
		entry.Pump.Stop()
		_ = entry.Child.Kill()
		table.Remove(peer)
	}
}
