package operation

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/battlewithbytes/manage/internal/manifest"
	"github.com/battlewithbytes/manage/internal/paths"
)

type fixture struct {
	work string
	dest string
	// opened records paths handed to the shell; openErr is returned for each.
	opened  []string
	openErr error
	exec    *Executor
	steps   []manifest.Action
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tmp := t.TempDir()
	f := &fixture{
		work: filepath.Join(tmp, "work"),
		dest: filepath.Join(tmp, "dest"),
	}
	require.NoError(t, os.MkdirAll(f.work, 0755))
	resolver := paths.New(
		paths.WithTempDir(filepath.Join(tmp, "temp")),
		paths.WithTokens(map[string]string{"DEST": f.dest}),
	)
	opener := OpenerFunc(func(_ context.Context, path string) error {
		f.opened = append(f.opened, path)
		return f.openErr
	})
	f.exec = NewExecutor(resolver, opener, zerolog.Nop())
	f.exec.OnStep = func(a manifest.Action, _ error) { f.steps = append(f.steps, a) }
	return f
}

func (f *fixture) write(t *testing.T, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.work, name), data, 0644))
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func tarGzBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestCopyPlainFile(t *testing.T) {
	f := newFixture(t)
	f.write(t, "tool.exe", []byte("binary"))

	err := f.exec.RunInstall(context.Background(), []manifest.Operation{
		{Action: manifest.ActionCopy, Source: "tool.exe", Destination: "$DEST/bin"},
	}, f.work)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(f.dest, "bin", "tool.exe"))
	require.NoError(t, err)
	assert.Equal(t, "binary", string(data))
}

func TestCopyOntoItselfKeepsSource(t *testing.T) {
	f := newFixture(t)
	f.write(t, "app.exe", []byte("payload"))
	require.NoError(t, os.MkdirAll(f.dest, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(f.dest, "tool.exe"), []byte("tool"), 0644))

	err := f.exec.RunInstall(context.Background(), []manifest.Operation{
		{Action: manifest.ActionCopy, Source: "app.exe", Destination: "."},
		{Action: manifest.ActionCopy, Source: "$DEST/tool.exe", Destination: "$DEST"},
	}, f.work)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(f.work, "app.exe"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	data, err = os.ReadFile(filepath.Join(f.dest, "tool.exe"))
	require.NoError(t, err)
	assert.Equal(t, "tool", string(data))
}

func TestCopyArchiveOntoItselfStillExtracts(t *testing.T) {
	f := newFixture(t)
	f.write(t, "app.zip", zipBytes(t, map[string]string{"app.exe": "exe"}))

	err := f.exec.RunInstall(context.Background(), []manifest.Operation{
		{Action: manifest.ActionCopy, Source: "app.zip", Destination: "."},
	}, f.work)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(f.work, "app.exe"))
	require.NoError(t, err)
	assert.Equal(t, "exe", string(data))
}

func TestCopyZipExtracts(t *testing.T) {
	f := newFixture(t)
	f.write(t, "app.zip", zipBytes(t, map[string]string{
		"app.exe":         "exe",
		"data/config.ini": "k=v",
	}))

	err := f.exec.RunInstall(context.Background(), []manifest.Operation{
		{Action: manifest.ActionCopy, Source: "app.zip", Destination: "$DEST"},
	}, f.work)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(f.dest, "app.zip"))
	data, err := os.ReadFile(filepath.Join(f.dest, "app.exe"))
	require.NoError(t, err)
	assert.Equal(t, "exe", string(data))
	data, err = os.ReadFile(filepath.Join(f.dest, "data", "config.ini"))
	require.NoError(t, err)
	assert.Equal(t, "k=v", string(data))
}

func TestCopyTarGzExtracts(t *testing.T) {
	f := newFixture(t)
	f.write(t, "app.tar.gz", tarGzBytes(t, map[string]string{"bin/app": "elf"}))

	err := f.exec.RunInstall(context.Background(), []manifest.Operation{
		{Action: manifest.ActionCopy, Source: "app.tar.gz", Destination: "$DEST"},
	}, f.work)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(f.dest, "bin", "app"))
	require.NoError(t, err)
	assert.Equal(t, "elf", string(data))
}

func TestCopyZipSlipRejected(t *testing.T) {
	f := newFixture(t)
	f.write(t, "evil.zip", zipBytes(t, map[string]string{"../../escaped.txt": "x"}))

	err := f.exec.RunInstall(context.Background(), []manifest.Operation{
		{Action: manifest.ActionCopy, Source: "evil.zip", Destination: "$DEST"},
	}, f.work)
	var oe *OperationError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, manifest.ActionCopy, oe.Action)
	assert.Contains(t, err.Error(), "invalid archive path")
	assert.FileExists(t, filepath.Join(f.dest, "evil.zip"), "copy stays applied")
	assert.NoFileExists(t, filepath.Join(filepath.Dir(f.dest), "escaped.txt"))
}

func TestCopyMissingSource(t *testing.T) {
	f := newFixture(t)

	err := f.exec.RunInstall(context.Background(), []manifest.Operation{
		{Action: manifest.ActionCopy, Source: "missing.exe", Destination: "$DEST"},
	}, f.work)
	var oe *OperationError
	require.ErrorAs(t, err, &oe)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunOpensResolvedFile(t *testing.T) {
	f := newFixture(t)
	f.write(t, "setup.exe", []byte("x"))

	err := f.exec.RunInstall(context.Background(), []manifest.Operation{
		{Action: manifest.ActionRun, Source: "setup.exe"},
	}, f.work)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(f.work, "setup.exe")}, f.opened)
}

func TestRunMissingFileFails(t *testing.T) {
	f := newFixture(t)

	err := f.exec.RunInstall(context.Background(), []manifest.Operation{
		{Action: manifest.ActionRun, Source: "setup.exe"},
	}, f.work)
	var oe *OperationError
	require.ErrorAs(t, err, &oe)
	assert.Empty(t, f.opened)
}

func TestRunOpenerFailure(t *testing.T) {
	f := newFixture(t)
	f.write(t, "setup.exe", []byte("x"))
	f.openErr = errors.New("no association")

	err := f.exec.RunInstall(context.Background(), []manifest.Operation{
		{Action: manifest.ActionRun, Source: "setup.exe"},
	}, f.work)
	var oe *OperationError
	require.ErrorAs(t, err, &oe)
	assert.Contains(t, err.Error(), "no association")
}

func TestDeleteMissingIsSkipped(t *testing.T) {
	f := newFixture(t)
	ops := []manifest.Operation{
		{Action: manifest.ActionDelete, Source: "$DEST/app.exe"},
		{Action: manifest.ActionDelete, Source: "$DEST/app.ini"},
	}

	require.NoError(t, f.exec.RunUninstall(context.Background(), ops, f.work))
	require.NoError(t, f.exec.RunUninstall(context.Background(), ops, f.work))
}

func TestDeleteRemovesFile(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(f.dest, 0755))
	target := filepath.Join(f.dest, "app.exe")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0644))

	err := f.exec.RunUninstall(context.Background(), []manifest.Operation{
		{Action: manifest.ActionDelete, Source: "$DEST/app.exe"},
	}, f.work)
	require.NoError(t, err)
	assert.NoFileExists(t, target)
}

func TestFirstFailureAbortsList(t *testing.T) {
	f := newFixture(t)
	f.write(t, "b.exe", []byte("x"))

	err := f.exec.RunInstall(context.Background(), []manifest.Operation{
		{Action: manifest.ActionRun, Source: "a.exe"},
		{Action: manifest.ActionRun, Source: "b.exe"},
	}, f.work)
	require.Error(t, err)
	assert.Empty(t, f.opened)
	assert.Equal(t, []manifest.Action{manifest.ActionRun}, f.steps)
}

func TestActionNotAllowedForList(t *testing.T) {
	f := newFixture(t)

	err := f.exec.RunInstall(context.Background(), []manifest.Operation{
		{Action: manifest.ActionDelete, Source: "$DEST/x"},
	}, f.work)
	var oe *OperationError
	require.ErrorAs(t, err, &oe)
	assert.Contains(t, err.Error(), "not allowed in install list")

	err = f.exec.RunUninstall(context.Background(), []manifest.Operation{
		{Action: manifest.ActionCopy, Source: "a", Destination: "$DEST"},
	}, f.work)
	require.ErrorAs(t, err, &oe)
}

func TestUnresolvablePathIsOperationError(t *testing.T) {
	f := newFixture(t)

	err := f.exec.RunUninstall(context.Background(), []manifest.Operation{
		{Action: manifest.ActionDelete, Source: "$NOWHERE/x"},
	}, f.work)
	var oe *OperationError
	require.ErrorAs(t, err, &oe)
	var pe *paths.PathResolutionError
	assert.ErrorAs(t, err, &pe)
}

func TestOperationsRunInOrder(t *testing.T) {
	f := newFixture(t)
	f.write(t, "one.exe", []byte("1"))
	f.write(t, "two.exe", []byte("2"))

	err := f.exec.RunInstall(context.Background(), []manifest.Operation{
		{Action: manifest.ActionRun, Source: "two.exe"},
		{Action: manifest.ActionCopy, Source: "one.exe", Destination: "$DEST"},
		{Action: manifest.ActionRun, Source: "one.exe"},
	}, f.work)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(f.work, "two.exe"), filepath.Join(f.work, "one.exe")}, f.opened)
	assert.Equal(t, []manifest.Action{manifest.ActionRun, manifest.ActionCopy, manifest.ActionRun}, f.steps)
}

func TestCancelledBeforeFirstOperation(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.exe", []byte("x"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.exec.RunInstall(ctx, []manifest.Operation{{Action: manifest.ActionRun, Source: "a.exe"}}, f.work)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.opened)
}
