package shell

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/open-edge-platform/container-image-composer/internal/utils/logger"
)

// HostRoot is the sentinel root path meaning "run on the host, no chroot".
var HostRoot = ""

// OSEnvirons returns the host environment variables as a map.
func OSEnvirons() map[string]string {
	environ := make(map[string]string)
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			environ[parts[0]] = parts[1]
		}
	}
	return environ
}

// ProxyEnvirons retrieves HTTP and HTTPS proxy environment variables so they
// can be forwarded into chroot package installs.
func ProxyEnvirons() map[string]string {
	proxyEnv := make(map[string]string)
	for key, value := range OSEnvirons() {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "http_proxy") || strings.Contains(lower, "https_proxy") {
			proxyEnv[key] = value
		}
	}
	return proxyEnv
}

// preferredShell returns the shell to wrap commands in, falling back to
// /bin/sh when bash is not available.
func preferredShell() string {
	shells := []string{"/bin/bash", "/usr/bin/bash", "/bin/sh"}
	for _, sh := range shells {
		if _, err := os.Stat(sh); err == nil {
			return sh
		}
	}
	return "/bin/sh"
}

// IsCommandExist checks if a command exists on the host or inside a staging
// rootfs.
func IsCommandExist(cmd string, rootfsPath string) bool {
	var cmdStr string
	if rootfsPath != HostRoot {
		cmdStr = "sudo chroot " + rootfsPath + " command -v " + cmd
	} else {
		cmdStr = "command -v " + cmd
	}

	output, _ := exec.Command(preferredShell(), "-c", cmdStr).Output()
	return len(bytes.TrimSpace(output)) != 0
}

// FullCmdStr prepares a command string with sudo/chroot/env prefixes.
func FullCmdStr(cmdStr string, sudo bool, rootfsPath string, envVal []string) (string, error) {
	log := logger.Logger()

	var envBuf strings.Builder
	for _, env := range envVal {
		envBuf.WriteString(env)
		envBuf.WriteString(" ")
	}

	if rootfsPath != HostRoot {
		if _, err := os.Stat(rootfsPath); os.IsNotExist(err) {
			return cmdStr, fmt.Errorf("rootfs path %s does not exist", rootfsPath)
		}
		for key, value := range ProxyEnvirons() {
			envBuf.WriteString(key + "=" + value + " ")
		}
		fullCmdStr := "sudo " + envBuf.String() + "chroot " + rootfsPath + " " + cmdStr
		log.Debugf("Rootfs %s Exec: [%s]", filepath.Base(rootfsPath), cmdStr)
		return fullCmdStr, nil
	}

	if sudo {
		for key, value := range ProxyEnvirons() {
			envBuf.WriteString(key + "=" + value + " ")
		}
		log.Debugf("Exec: [sudo %s]", cmdStr)
		return "sudo " + envBuf.String() + cmdStr, nil
	}

	log.Debugf("Exec: [%s]", cmdStr)
	return envBuf.String() + cmdStr, nil
}

// ExecCmd executes a command and returns its combined output.
func ExecCmd(cmdStr string, sudo bool, rootfsPath string, envVal []string) (string, error) {
	log := logger.Logger()
	fullCmdStr, err := FullCmdStr(cmdStr, sudo, rootfsPath, envVal)
	if err != nil {
		return "", fmt.Errorf("failed to get full command string: %w", err)
	}

	cmd := exec.Command(preferredShell(), "-c", fullCmdStr)
	output, err := cmd.CombinedOutput()
	outputStr := string(output)

	if err != nil {
		if outputStr != "" {
			log.Infof(outputStr)
		}
		return outputStr, fmt.Errorf("failed to exec %s: %w", fullCmdStr, err)
	}
	if outputStr != "" {
		log.Debugf(outputStr)
	}
	return outputStr, nil
}

// ExecCmdWithStream executes a command and streams stdout/stderr lines to the
// logger as they arrive. Long package installs go through here so progress is
// visible.
func ExecCmdWithStream(cmdStr string, sudo bool, rootfsPath string, envVal []string) (string, error) {
	log := logger.Logger()

	fullCmdStr, err := FullCmdStr(cmdStr, sudo, rootfsPath, envVal)
	if err != nil {
		return "", fmt.Errorf("failed to get full command string: %w", err)
	}

	cmd := exec.Command(preferredShell(), "-c", fullCmdStr)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to get stdout pipe for command %s: %w", fullCmdStr, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to get stderr pipe for command %s: %w", fullCmdStr, err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start command %s: %w", fullCmdStr, err)
	}

	var outputStr string
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			str := scanner.Text()
			if str != "" {
				outputStr += str
				log.Infof(str)
			}
		}
	}()

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			str := scanner.Text()
			if str != "" {
				log.Infof(str)
			}
		}
	}()

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return outputStr, fmt.Errorf("failed to wait for command %s: %w", fullCmdStr, err)
	}

	return outputStr, nil
}
