package image

import (
	"context"
	"fmt"
	"os/exec"
)

// Tool creates copy-on-write overlay disks. The default implementation
// shells out to qemu-img; tests substitute a fake.
type Tool interface {
	// CreateOverlay creates a qcow2 overlay at overlayPath backed by
	// basePath. It fails if the backing file is missing.
	CreateOverlay(ctx context.Context, basePath, overlayPath string) error
}

// QemuImg is the qemu-img based Tool.
type QemuImg struct{}

// NewQemuImg returns the default overlay tool.
func NewQemuImg() *QemuImg { return &QemuImg{} }

// CreateOverlay runs qemu-img create with an explicit backing format,
// so qemu never probes the base image header.
func (q *QemuImg) CreateOverlay(ctx context.Context, basePath, overlayPath string) error {
	cmd := exec.CommandContext(ctx,
		"qemu-img", "create",
		"-f", "qcow2",
		"-b", basePath,
		"-F", "qcow2",
		overlayPath,
	)

	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to create overlay %s: %w\nOutput: %s", overlayPath, err, string(output))
	}

	return nil
}
