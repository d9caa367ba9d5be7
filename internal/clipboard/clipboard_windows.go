//go:build windows

package clipboard

import (
	"bytes"
	"os/exec"
	"strings"
)

// winAdapter drives the Windows clipboard via clip.exe (write) and
// PowerShell's Get-Clipboard (read), mirroring identity_windows.go's
// reg-query-via-exec approach rather than pulling in a cgo/win32
// binding.
type winAdapter struct{}

// NewPlatformAdapter returns the Windows clip.exe/PowerShell-backed
// Adapter.
func NewPlatformAdapter() Adapter { return &winAdapter{} }

func (winAdapter) Read() (Content, error) {
	out, err := exec.Command("powershell", "-NoProfile", "-Command", "Get-Clipboard").Output()
	if err != nil {
		return Content{}, &Error{Op: "read", Err: err}
	}
	text := strings.TrimRight(string(out), "\r\n")
	return Content{Kind: KindText, Text: text}, nil
}

func (winAdapter) Write(text string) error {
	cmd := exec.Command("clip")
	cmd.Stdin = bytes.NewReader([]byte(text))
	if err := cmd.Run(); err != nil {
		return &Error{Op: "write", Err: err}
	}
	return nil
}
