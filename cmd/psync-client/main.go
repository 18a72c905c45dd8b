// Command psync-client syncs a target executable and its auxiliary files
// to a psync-server host, opens a session for it, streams the remote
// output to its own stdout, and forwards local interrupts as a Kill
// request.
package main

import (
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strconv"

	goerrors "github.com/go-errors/errors"
	"github.com/gorilla/websocket"
	"github.com/integrii/flaggy"

	"github.com/go-psyncd/psyncd/internal/logging"
	"github.com/go-psyncd/psyncd/internal/sigctl"
	"github.com/go-psyncd/psyncd/internal/wire"
)

var version = "unversioned"

func main() {
	host := "localhost"
	port := 5000
	user := ""
	targetPath := ""
	destRoot := "/tmp/psync"
	strictTLS := false
	var extraArgs []string

	flaggy.SetName("psync-client")
	flaggy.SetDescription("Client for remote execution of synchronized build artifacts.")
	flaggy.String(&host, "", "host", "Server host.")
	flaggy.Int(&port, "", "port", "Server port.")
	flaggy.String(&user, "u", "user", "Remote sync user (user@host).")
	flaggy.String(&destRoot, "", "dest-root", "Base destination directory on the server.")
	flaggy.Bool(&strictTLS, "", "strict-tls", "Verify the server's TLS certificate hostname.")
	flaggy.AddPositionalValue(&targetPath, "target", 1, true, "Path to the local executable to run remotely.")
	flaggy.SetVersion(version)
	flaggy.Parse()
	extraArgs = flaggy.TrailingArguments

	logger := logging.New("client", version)

	destPath := destRoot + "/" + hashWorkingDir()
	if err := syncFiles(user, host, targetPath, destPath); err != nil {
		logger.WithError(goerrors.Wrap(err, 0)).Fatal("psync-client: sync failed")
	}

	remotePath := path.Join(destPath, filepath.Base(targetPath))

	conn, err := dial(host, port, strictTLS)
	if err != nil {
		logger.WithError(goerrors.Wrap(err, 0)).Fatal("psync-client: failed to connect")
	}
	defer conn.Close()

	sigctl.Watch(
		func() {
			logger.Warn("psync-client: interrupted, sending kill")
			_ = conn.WriteMessage(websocket.TextMessage, []byte(wire.SerializeRequest(wire.Kill{})))
		},
		func() {
			logger.Warn("psync-client: interrupted again, forcing exit")
			os.Exit(130)
		},
	)

	open := wire.Open{Path: remotePath, Args: extraArgs, Env: map[string]string{}}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(wire.SerializeRequest(open))); err != nil {
		logger.WithError(err).Fatal("psync-client: failed to send open request")
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			logger.WithError(err).Warn("psync-client: connection closed")
			os.Exit(1)
		}

		resp, err := wire.ParseResponse(string(data))
		if err != nil {
			logger.WithError(err).Warn("psync-client: dropping unparseable frame")
			continue
		}

		switch r := resp.(type) {
		case wire.Okay:
			// acknowledged; nothing to print
		case wire.Log:
			fmt.Fprint(os.Stdout, r.Msg)
		case wire.Error:
			logger.Errorf("psync-client: server error: %s", r.Msg)
		case wire.Exit:
			os.Exit(r.Code)
		}
	}
}

func dial(host string, port int, strict bool) (*websocket.Conn, error) {
	u := url.URL{Scheme: "wss", Host: host + ":" + strconv.Itoa(port)}
	dialer := websocket.Dialer{
		// Hostname verification is disabled by default for self-signed
		// deployments; --strict-tls opts back in.
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !strict}, //nolint:gosec
	}
	conn, _, err := dialer.Dial(u.String(), nil)
	return conn, err
}

// syncFiles shells out to rsync the way the original client did, copying
// targetPath into destPath on host, grounded on the reference client's
// rsync() helper.
func syncFiles(user, host, targetPath, destPath string) error {
	cmd := exec.Command("rsync", rsyncArgs(user, host, targetPath, destPath)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func rsyncArgs(user, host, targetPath, destPath string) []string {
	prefix := ""
	if user != "" {
		prefix = user + "@"
	}
	dest := fmt.Sprintf("%s%s:%s", prefix, host, destPath)
	return []string{"-avzr", "--progress", "--mkpath", targetPath, dest}
}

// hashWorkingDir returns a stable hex digest of the client's absolute
// working directory, used to name a per-project, collision-free
// destination directory on the server.
func hashWorkingDir() string {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	abs, err := filepath.Abs(wd)
	if err != nil {
		abs = wd
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:])[:16]
}
