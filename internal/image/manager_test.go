package image

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmichett/Fedora-Remix-Lab/internal/config"
	"github.com/tmichett/Fedora-Remix-Lab/internal/confirm"
)

// fakeTool stands in for qemu-img: it records calls and writes a
// placeholder overlay file.
type fakeTool struct {
	calls [][2]string
	err   error
}

func (f *fakeTool) CreateOverlay(_ context.Context, basePath, overlayPath string) error {
	f.calls = append(f.calls, [2]string{basePath, overlayPath})
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(overlayPath, []byte("overlay"), 0644)
}

func newTestManager(t *testing.T, confirmer confirm.Confirmer) (*Manager, *fakeTool, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "managed")
	tool := &fakeTool{}
	m := NewManagerWithOwner(root, tool, confirmer, os.Getuid(), os.Getgid())
	require.NoError(t, m.EnsureRoot())
	return m, tool, root
}

func testVM(root, base string) config.VMSpec {
	return config.VMSpec{
		Name:           "FedoraLab1",
		MACAddress:     "52:54:00:1a:b0:aa",
		IPAddress:      net.ParseIP("192.168.100.10"),
		BaseImagePath:  base,
		OverlayPath:    filepath.Join(root, "FedoraLab1.qcow2"),
		DescriptorPath: filepath.Join(root, "FedoraLab1.xml"),
	}
}

func TestEnsureBaseImage(t *testing.T) {
	m, _, _ := newTestManager(t, confirm.Deny())
	dir := t.TempDir()

	src := filepath.Join(dir, "src.qcow2")
	require.NoError(t, os.WriteFile(src, []byte("pristine"), 0644))
	dest := filepath.Join(dir, "base.qcow2")

	require.NoError(t, m.EnsureBaseImage(src, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "pristine", string(data))
}

func TestEnsureBaseImage_ExistingDestUntouched(t *testing.T) {
	m, _, _ := newTestManager(t, confirm.Deny())
	dir := t.TempDir()

	src := filepath.Join(dir, "src.qcow2")
	require.NoError(t, os.WriteFile(src, []byte("new content"), 0644))
	dest := filepath.Join(dir, "base.qcow2")
	require.NoError(t, os.WriteFile(dest, []byte("referenced by overlays"), 0644))

	require.NoError(t, m.EnsureBaseImage(src, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "referenced by overlays", string(data))
}

func TestEnsureBaseImage_MissingSourceIsFatal(t *testing.T) {
	m, _, _ := newTestManager(t, confirm.Deny())
	dir := t.TempDir()
	dest := filepath.Join(dir, "base.qcow2")

	err := m.EnsureBaseImage(filepath.Join(dir, "nope.qcow2"), dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCreateOverlay(t *testing.T) {
	m, tool, root := newTestManager(t, confirm.Deny())

	base := filepath.Join(t.TempDir(), "base.qcow2")
	require.NoError(t, os.WriteFile(base, []byte("base"), 0644))
	vm := testVM(root, base)

	created, err := m.CreateOverlay(context.Background(), vm)
	require.NoError(t, err)
	assert.True(t, created)

	require.Len(t, tool.calls, 1)
	assert.Equal(t, base, tool.calls[0][0])
	assert.Equal(t, vm.OverlayPath, tool.calls[0][1])
	assert.FileExists(t, vm.OverlayPath)
}

func TestCreateOverlay_MissingBaseIsFatal(t *testing.T) {
	m, tool, root := newTestManager(t, confirm.Deny())
	vm := testVM(root, filepath.Join(t.TempDir(), "missing.qcow2"))

	_, err := m.CreateOverlay(context.Background(), vm)
	require.Error(t, err)

	// Nothing was written for the failed VM.
	assert.Empty(t, tool.calls)
	_, statErr := os.Stat(vm.OverlayPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCreateOverlay_ExistingKeptWhenDeclined(t *testing.T) {
	m, tool, root := newTestManager(t, confirm.Deny())

	base := filepath.Join(t.TempDir(), "base.qcow2")
	require.NoError(t, os.WriteFile(base, []byte("base"), 0644))
	vm := testVM(root, base)
	require.NoError(t, os.WriteFile(vm.OverlayPath, []byte("student work"), 0644))

	created, err := m.CreateOverlay(context.Background(), vm)
	require.NoError(t, err)
	assert.False(t, created)

	assert.Empty(t, tool.calls)
	data, err := os.ReadFile(vm.OverlayPath)
	require.NoError(t, err)
	assert.Equal(t, "student work", string(data))
}

func TestCreateOverlay_ExistingRebuiltWhenConfirmed(t *testing.T) {
	m, tool, root := newTestManager(t, confirm.Accept())

	base := filepath.Join(t.TempDir(), "base.qcow2")
	require.NoError(t, os.WriteFile(base, []byte("base"), 0644))
	vm := testVM(root, base)
	require.NoError(t, os.WriteFile(vm.OverlayPath, []byte("stale"), 0644))

	created, err := m.CreateOverlay(context.Background(), vm)
	require.NoError(t, err)
	assert.True(t, created)

	require.Len(t, tool.calls, 1)
	data, err := os.ReadFile(vm.OverlayPath)
	require.NoError(t, err)
	assert.Equal(t, "overlay", string(data))
}

func TestWriteArtifact(t *testing.T) {
	m, _, root := newTestManager(t, confirm.Deny())
	path := filepath.Join(root, "FedoraLab1.xml")

	require.NoError(t, m.WriteArtifact(path, []byte("<domain/>")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<domain/>", string(data))
}

func TestRemoveManagedRoot(t *testing.T) {
	m, _, root := newTestManager(t, confirm.Deny())
	require.NoError(t, os.WriteFile(filepath.Join(root, "FedoraLab1.qcow2"), []byte("overlay"), 0644))

	require.NoError(t, m.RemoveManagedRoot())
	_, err := os.Stat(root)
	assert.True(t, os.IsNotExist(err))

	// Converging from "already gone" is not an error.
	assert.NoError(t, m.RemoveManagedRoot())
}

func TestRemoveManagedRoot_BaseImageOutsideRootSurvives(t *testing.T) {
	m, _, _ := newTestManager(t, confirm.Deny())

	base := filepath.Join(t.TempDir(), "base.qcow2")
	require.NoError(t, os.WriteFile(base, []byte("base"), 0644))

	require.NoError(t, m.RemoveManagedRoot())
	assert.FileExists(t, base)
}
