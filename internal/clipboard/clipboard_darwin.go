//go:build darwin

package clipboard

import (
	"bytes"
	"os/exec"
)

// macAdapter shells out to pbcopy/pbpaste, the same coreutils-style
// exec approach the teacher uses for OS-specific lookups in
// identity_windows.go's readReg.
type macAdapter struct{}

// NewPlatformAdapter returns the macOS pbcopy/pbpaste-backed Adapter.
func NewPlatformAdapter() Adapter { return &macAdapter{} }

func (macAdapter) Read() (Content, error) {
	out, err := exec.Command("pbpaste").Output()
	if err != nil {
		return Content{}, &Error{Op: "read", Err: err}
	}
	return Content{Kind: KindText, Text: string(out)}, nil
}

func (macAdapter) Write(text string) error {
	cmd := exec.Command("pbcopy")
	cmd.Stdin = bytes.NewReader([]byte(text))
	if err := cmd.Run(); err != nil {
		return &Error{Op: "write", Err: err}
	}
	return nil
}
