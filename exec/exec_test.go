package exec

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_CapturesStdout(t *testing.T) {
	result, err := New().Run("echo", "hello world")
	require.NoError(t, err)
	assert.Contains(t, result.Stdout, "hello world")
	assert.Contains(t, result.Combined, "hello world")
	assert.Equal(t, 0, result.ExitCode)
}

func TestRun_NoArgs(t *testing.T) {
	_, err := New().Run()
	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, -1, execErr.ExitCode)
}

func TestRun_Failure(t *testing.T) {
	result, err := New().Run("sh", "-c", "echo fatal: bad object >&2; exit 3")
	require.Error(t, err)
	require.NotNil(t, result)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 3, execErr.ExitCode)
	assert.Contains(t, execErr.Stderr, "fatal: bad object")
	assert.Contains(t, err.Error(), "fatal: bad object")
}

func TestRun_Stdin(t *testing.T) {
	result, err := New().WithStdin(strings.NewReader("abc\ndef\n")).Run("wc", "-l")
	require.NoError(t, err)
	assert.Equal(t, "2", strings.TrimSpace(result.Stdout))
}

func TestRun_DirAndEnv(t *testing.T) {
	dir := t.TempDir()
	result, err := New().
		WithDir(dir).
		WithEnv(map[string]string{"SCALAR_TEST": "yes"}).
		Run("sh", "-c", "pwd; echo $SCALAR_TEST")
	require.NoError(t, err)
	assert.Contains(t, result.Stdout, dir)
	assert.Contains(t, result.Stdout, "yes")
}

func TestRun_LocalSettingsReset(t *testing.T) {
	cmd := New(WithEnv(map[string]string{"GLOBAL": "g"}))

	first, err := cmd.WithEnv(map[string]string{"LOCAL": "l"}).Run("sh", "-c", "echo $GLOBAL-$LOCAL")
	require.NoError(t, err)
	assert.Equal(t, "g-l", strings.TrimSpace(first.Stdout))

	second, err := cmd.Run("sh", "-c", "echo $GLOBAL-$LOCAL")
	require.NoError(t, err)
	assert.Equal(t, "g-", strings.TrimSpace(second.Stdout))
}

func TestRun_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().WithContext(ctx).Run("sleep", "5")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRun_Timeout(t *testing.T) {
	start := time.Now()
	_, err := New().WithTimeout(50*time.Millisecond).Run("sleep", "5")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestClone_DropsLocalSettings(t *testing.T) {
	cmd := New(WithEnv(map[string]string{"GLOBAL": "g"}))
	cmd.WithEnv(map[string]string{"LOCAL": "l"})

	clone := cmd.Clone()
	result, err := clone.Run("sh", "-c", "echo $GLOBAL-$LOCAL")
	require.NoError(t, err)
	assert.Equal(t, "g-", strings.TrimSpace(result.Stdout))
}
