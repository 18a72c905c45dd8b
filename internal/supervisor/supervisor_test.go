package supervisor

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnMergesStdoutAndStderr(t *testing.T) {
	script := writeScript(t, `#!/bin/sh
echo out-line
echo err-line 1>&2
exit 0
`)

	child, err := Spawn(Request{Path: script}, false, "")
	require.NoError(t, err)

	output, err := io.ReadAll(child.Output)
	require.NoError(t, err)
	assert.Contains(t, string(output), "out-line")
	assert.Contains(t, string(output), "err-line")

	assert.Equal(t, 0, child.Wait())
}

func TestSpawnPassesArgsAndEnv(t *testing.T) {
	script := writeScript(t, `#!/bin/sh
echo "$1"
echo "$GREETING"
exit 0
`)

	child, err := Spawn(Request{
		Path: script,
		Args: []string{"hello"},
		Env:  map[string]string{"GREETING": "hi there"},
	}, false, "")
	require.NoError(t, err)

	output, err := io.ReadAll(child.Output)
	require.NoError(t, err)
	assert.Contains(t, string(output), "hello")
	assert.Contains(t, string(output), "hi there")
	assert.Equal(t, 0, child.Wait())
}

func TestSpawnNonZeroExit(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\nexit 7\n")

	child, err := Spawn(Request{Path: script}, false, "")
	require.NoError(t, err)
	_, _ = io.ReadAll(child.Output)
	assert.Equal(t, 7, child.Wait())
}

func TestSpawnMissingExecutable(t *testing.T) {
	_, err := Spawn(Request{Path: "/does/not/exist"}, false, "")
	assert.Error(t, err)
}

func TestSpawnKill(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\nsleep 60\n")

	child, err := Spawn(Request{Path: script}, false, "")
	require.NoError(t, err)

	require.NoError(t, child.Kill())

	code := child.Wait()
	assert.NotEqual(t, 0, code)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "script.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}
