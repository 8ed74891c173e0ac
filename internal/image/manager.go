// Package image owns the base image and overlay disk lifecycle. The
// base image is copied once into managed storage and never mutated
// afterwards; each VM gets a copy-on-write overlay referencing it.
package image

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/tmichett/Fedora-Remix-Lab/internal/config"
	"github.com/tmichett/Fedora-Remix-Lab/internal/confirm"
)

const (
	// dirPermissions are the permissions for the managed root.
	dirPermissions = 0755

	// filePermissions are the permissions for disk images.
	filePermissions = 0644
)

// Manager handles base image and overlay storage under the managed root.
type Manager struct {
	root      string
	tool      Tool
	confirmer confirm.Confirmer
	uid       int
	gid       int
}

// NewManager creates an image manager rooted at root. The QEMU owner is
// discovered from the host; a discovery failure falls back to the
// distribution default and is logged, not fatal.
func NewManager(root string, tool Tool, confirmer confirm.Confirmer) *Manager {
	uid, gid, err := qemuOwner()
	if err != nil {
		log.Printf("Warning: %v", err)
	}
	return NewManagerWithOwner(root, tool, confirmer, uid, gid)
}

// NewManagerWithOwner creates an image manager with an explicit disk
// owner. Tests use this to avoid depending on a host qemu account.
func NewManagerWithOwner(root string, tool Tool, confirmer confirm.Confirmer, uid, gid int) *Manager {
	return &Manager{
		root:      root,
		tool:      tool,
		confirmer: confirmer,
		uid:       uid,
		gid:       gid,
	}
}

// Root returns the managed storage root.
func (m *Manager) Root() string { return m.root }

// EnsureRoot creates the managed root directory if needed.
func (m *Manager) EnsureRoot() error {
	if err := os.MkdirAll(m.root, dirPermissions); err != nil {
		return fmt.Errorf("failed to create managed root %s: %w", m.root, err)
	}
	if err := os.Chown(m.root, m.uid, m.gid); err != nil {
		log.Printf("Warning: failed to set ownership on %s: %v", m.root, err)
	}
	return nil
}

// EnsureBaseImage copies the pristine source image to dest once. A
// missing source is fatal; an existing dest is a no-op, never a
// re-copy, since overlays may already reference it.
func (m *Manager) EnsureBaseImage(src, dest string) error {
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("base image source %s not found: %w", src, err)
	}

	if _, err := os.Stat(dest); err == nil {
		log.Printf("Base image %s already present, leaving untouched", dest)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), dirPermissions); err != nil {
		return fmt.Errorf("failed to create base image directory: %w", err)
	}

	if err := copyFile(src, dest); err != nil {
		return fmt.Errorf("failed to copy base image: %w", err)
	}

	if err := m.setFileOwnership(dest); err != nil {
		return err
	}

	log.Printf("Base image copied to %s", dest)
	return nil
}

// CreateOverlay creates the copy-on-write overlay disk for one VM and
// reports whether a fresh overlay was written. A missing base image is
// fatal. An existing overlay is preserved unless its overwrite is
// explicitly confirmed; declining keeps the VM's disk without failing
// the workflow.
func (m *Manager) CreateOverlay(ctx context.Context, vm config.VMSpec) (bool, error) {
	if _, err := os.Stat(vm.BaseImagePath); err != nil {
		return false, fmt.Errorf("base image %s not found: %w", vm.BaseImagePath, err)
	}

	if _, err := os.Stat(vm.OverlayPath); err == nil {
		if !m.confirmer.Confirm(fmt.Sprintf("overwrite existing overlay %s", vm.OverlayPath)) {
			log.Printf("Overlay %s already exists, keeping it", vm.OverlayPath)
			return false, nil
		}
		if err := os.Remove(vm.OverlayPath); err != nil {
			return false, fmt.Errorf("failed to remove overlay %s: %w", vm.OverlayPath, err)
		}
	}

	if err := m.tool.CreateOverlay(ctx, vm.BaseImagePath, vm.OverlayPath); err != nil {
		return false, err
	}

	return true, m.setFileOwnership(vm.OverlayPath)
}

// WriteArtifact writes a managed artifact (rendered descriptor, seed
// ISO) under the managed root with normalized ownership.
func (m *Manager) WriteArtifact(path string, data []byte) error {
	if err := os.WriteFile(path, data, filePermissions); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chown(path, m.uid, m.gid); err != nil {
		log.Printf("Warning: failed to set ownership on %s: %v", path, err)
	}
	return nil
}

// RemoveManagedRoot deletes the managed root and everything under it:
// overlays, rendered descriptors and seed ISOs. The base image lives
// outside the root and survives. An absent root is not an error.
func (m *Manager) RemoveManagedRoot() error {
	if _, err := os.Stat(m.root); os.IsNotExist(err) {
		return nil
	}

	if err := os.RemoveAll(m.root); err != nil {
		return fmt.Errorf("failed to delete managed root %s: %w", m.root, err)
	}

	return nil
}

// setFileOwnership normalizes ownership and permissions on a disk file
// so the QEMU process can open it.
func (m *Manager) setFileOwnership(path string) error {
	if err := os.Chown(path, m.uid, m.gid); err != nil {
		return fmt.Errorf("failed to set ownership on %s: %w", path, err)
	}
	if err := os.Chmod(path, filePermissions); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePermissions)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}

	return out.Close()
}
