package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2thetop/scalar/ipc"
	"github.com/2thetop/scalar/maintenance"
)

type stubStep struct{ kind maintenance.Kind }

func (s stubStep) Kind() maintenance.Kind { return s.kind }
func (s stubStep) DedupKey() string       { return "" }
func (s stubStep) Execute(context.Context) maintenance.StepResult {
	return maintenance.StepResult{Kind: s.kind, Success: true}
}

type stubMaintainer struct {
	queued []maintenance.Kind
}

func (m *stubMaintainer) NewOneTimeStep(kind maintenance.Kind) (maintenance.Step, error) {
	return stubStep{kind: kind}, nil
}

func (m *stubMaintainer) EnqueueOneTimeStep(step maintenance.Step) bool {
	m.queued = append(m.queued, step.Kind())
	return true
}

func (m *stubMaintainer) Status() maintenance.QueueStatus {
	return maintenance.QueueStatus{Pending: 1, Running: maintenance.KindLooseObjects}
}

func (m *stubMaintainer) Registrations() []maintenance.Registration {
	return maintenance.DefaultSchedule(false)
}

func startService(t *testing.T, m ipc.Maintainer) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "scalar-cmd-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	srv := ipc.NewServer(filepath.Join(dir, "m.sock"))
	ipc.NewHandler(m, nil).Register(srv)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv.SocketPath()
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	m := &stubMaintainer{}
	socket := startService(t, m)

	out, err := execute(t, "run", "packfile", "--socket", socket)
	require.NoError(t, err)
	assert.Contains(t, out, "queued packfile")
	assert.Equal(t, []maintenance.Kind{maintenance.KindPackfile}, m.queued)
}

func TestRunCommand_UnknownTask(t *testing.T) {
	m := &stubMaintainer{}
	socket := startService(t, m)

	_, err := execute(t, "run", "defrag", "--socket", socket)
	require.Error(t, err)
	assert.Empty(t, m.queued)
}

func TestStatusCommand(t *testing.T) {
	socket := startService(t, &stubMaintainer{})

	out, err := execute(t, "status", "--socket", socket)
	require.NoError(t, err)

	var status ipc.Status
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, 1, status.Pending)
	assert.Equal(t, "loose_objects", status.Running)
	assert.Len(t, status.Timers, 4)
}

func TestStatusCommand_NoService(t *testing.T) {
	_, err := execute(t, "status", "--socket", filepath.Join(t.TempDir(), "missing.sock"))
	assert.Error(t, err)
}
