// Package supervisor spawns and supervises the single child process owned
// by a peer session: start, merged-output drain, wait, and kill.
package supervisor

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	goerrors "github.com/go-errors/errors"
	"github.com/jesseduffield/kill"
)

// Request describes what to spawn, mirroring wire.Open without importing
// the wire package (the supervisor has no business knowing about frames).
type Request struct {
	Path string
	Args []string
	Env  map[string]string
}

// Child is a live supervised process and its merged output stream.
type Child struct {
	cmd    *exec.Cmd
	Output io.ReadCloser

	waitOnce sync.Once
	waitErr  error
	code     int
}

// Spawn resolves path, builds argv and env per the overlay rule, and starts
// the child with stdout+stderr merged into a single readable stream.
//
// inheritBaseEnv and targetUser come from the server's startup config
// inheritBaseEnv and targetUser come from the server's startup configuration;
// targetUser, if non-empty, is applied via the process's
// credentials before exec.
func Spawn(req Request, inheritBaseEnv bool, targetUser string) (*Child, error) {
	resolved, err := resolvePath(req.Path)
	if err != nil {
		return nil, goerrors.Wrap(fmt.Errorf("resolving %q: %w", req.Path, err), 0)
	}

	argv := append([]string{resolved}, req.Args...)
	cmd := exec.Command(resolved, argv[1:]...)
	cmd.Env = buildEnv(inheritBaseEnv, req.Env)

	if targetUser != "" {
		if err := applyUser(cmd, targetUser); err != nil {
			return nil, goerrors.Wrap(err, 0)
		}
	}
	kill.PrepareForChildren(cmd)

	// A single *os.File shared between Stdout and Stderr is special-cased
	// by os/exec to dup one fd rather than two, which is what gives us
	// Both streams land on the same underlying fd in the exact order the
	// kernel delivers writes, merging stdout and stderr without losing
	// interleaving, the same effect as Python's
	// Popen(stdout=PIPE, stderr=STDOUT) in the reference implementation.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, goerrors.Wrap(err, 0)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, goerrors.Wrap(err, 0)
	}
	// The child now holds its own duplicated fd; close our write end so the
	// reader observes EOF once every process sharing that fd has exited.
	_ = pw.Close()

	return &Child{cmd: cmd, Output: pr}, nil
}

// Wait blocks until the child exits and returns its exit code. Negative
// values indicate signal termination.
func (c *Child) Wait() int {
	c.waitOnce.Do(func() {
		c.waitErr = c.cmd.Wait()
		c.code = exitCode(c.cmd, c.waitErr)
	})
	return c.code
}

// Kill sends an uncatchable termination signal to the child's process
// group, so that a supervised build script's own sub-children are reaped
// too.
func (c *Child) Kill() error {
	return kill.Kill(c.cmd)
}

// PID returns the child's process id, for logging and orphan-freedom checks.
func (c *Child) PID() int {
	if c.cmd.Process == nil {
		return -1
	}
	return c.cmd.Process.Pid
}

// exitCode returns the decimal exit code, or exec.ExitCode()'s own negative
// convention for signal termination (-1 there means "unknown", which is the
// best we can do for non-ExitError failures too).
func exitCode(cmd *exec.Cmd, err error) int {
	if err == nil {
		return cmd.ProcessState.ExitCode()
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// resolvePath expands a leading ~ to the server process's home directory and
// resolves the result to an absolute path: the resolved path, not the raw
// request string, becomes argv[0].
func resolvePath(path string) (string, error) {
	expanded := path
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~"))
	}
	return filepath.Abs(expanded)
}

// buildEnv applies the overlay rule: when inheritBaseEnv is set, the server
// process's environment is merged first and the request's env wins on key
// collision; otherwise the request's env is used exactly.
func buildEnv(inheritBaseEnv bool, requested map[string]string) []string {
	merged := make(map[string]string, len(requested))
	if inheritBaseEnv {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				merged[kv[:i]] = kv[i+1:]
			}
		}
	}
	for k, v := range requested {
		merged[k] = v
	}

	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	return env
}

func applyUser(cmd *exec.Cmd, username string) error {
	u, err := user.Lookup(username)
	if err != nil {
		return fmt.Errorf("looking up user %q: %w", username, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return err
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return err
	}
	return setCredential(cmd, uint32(uid), uint32(gid))
}
