package chroot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/open-edge-platform/container-image-composer/internal/utils/logger"
	"github.com/open-edge-platform/container-image-composer/internal/utils/shell"
)

// Env is a chroot execution environment over a staged rootfs, used to run
// recipe runCommands during image builds. Setup and Run require root.
type Env struct {
	RootfsPath string
	mounted    []string
}

// NewEnv returns an environment for the given staged rootfs.
func NewEnv(rootfsPath string) *Env {
	return &Env{RootfsPath: rootfsPath}
}

// kernelMounts are the pseudo filesystems commands inside the chroot expect.
func kernelMounts() [][2]string {
	return [][2]string{
		{"proc", "proc"},
		{"sysfs", "sys"},
		{"devtmpfs", "dev"},
	}
}

// Setup mounts kernel filesystems into the rootfs and installs the host
// resolver configuration so networked commands work inside the chroot.
func (e *Env) Setup() error {
	log := logger.Logger()

	if os.Geteuid() != 0 {
		return fmt.Errorf("chroot setup requires root")
	}
	if !shell.IsCommandExist("sh", e.RootfsPath) {
		return fmt.Errorf("rootfs %s has no shell to execute run commands", e.RootfsPath)
	}

	for _, m := range kernelMounts() {
		target := filepath.Join(e.RootfsPath, m[1])
		if err := os.MkdirAll(target, 0755); err != nil {
			return fmt.Errorf("creating mount point %s: %w", target, err)
		}
		cmd := fmt.Sprintf("mount -t %s %s %s", m[0], m[0], target)
		if _, err := shell.ExecCmd(cmd, true, "", nil); err != nil {
			e.Cleanup()
			return fmt.Errorf("mounting %s: %w", m[1], err)
		}
		e.mounted = append(e.mounted, target)
	}

	resolv := filepath.Join(e.RootfsPath, "etc", "resolv.conf")
	if err := os.MkdirAll(filepath.Dir(resolv), 0755); err != nil {
		return fmt.Errorf("creating etc in rootfs: %w", err)
	}
	if _, err := shell.ExecCmd(fmt.Sprintf("cp /etc/resolv.conf %s", resolv), true, "", nil); err != nil {
		log.Warnf("Failed to install resolv.conf into chroot: %v", err)
	}

	log.Infof("Chroot environment ready at %s", e.RootfsPath)
	return nil
}

// Run executes one shell command inside the chroot, streaming its output
// to the build log.
func (e *Env) Run(cmdStr string) error {
	if _, err := shell.ExecCmdWithStream(cmdStr, true, e.RootfsPath, nil); err != nil {
		return fmt.Errorf("running %q in chroot: %w", cmdStr, err)
	}
	return nil
}

// Cleanup unmounts everything Setup mounted, in reverse order.
func (e *Env) Cleanup() {
	log := logger.Logger()

	for i := len(e.mounted) - 1; i >= 0; i-- {
		cmd := fmt.Sprintf("umount %s", e.mounted[i])
		if _, err := shell.ExecCmd(cmd, true, "", nil); err != nil {
			log.Warnf("Failed to unmount %s: %v", e.mounted[i], err)
		}
	}
	e.mounted = nil
}
