// Package browser opens URLs in the user's default web browser.
package browser

import (
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Open launches the platform's URL handler for url and returns without
// waiting for the browser. An error means the handler could not be started;
// callers should fall back to printing the URL.
func Open(url string) error {
	name, args := Command(runtime.GOOS, url, isWSL())
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	// Reap the launcher in the background so it does not linger as a zombie.
	go func() { _ = cmd.Wait() }()
	return nil
}

// Command returns the program and arguments that open url on goos.
func Command(goos, url string, wsl bool) (string, []string) {
	switch goos {
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	case "darwin":
		return "open", []string{url}
	default: // "linux", "freebsd", "openbsd", "netbsd"
		if wsl {
			return "cmd.exe", []string{"/c", "start", url}
		}
		return "xdg-open", []string{url}
	}
}

// isWSL reports whether we are running inside Windows Subsystem for Linux.
func isWSL() bool {
	if runtime.GOOS != "linux" {
		return false
	}
	data, err := os.ReadFile("/proc/sys/kernel/osrelease")
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(data)), "microsoft")
}
