//go:build windows

package clipboard

import (
	"context"
	"errors"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procOpenClipboard    = user32.NewProc("OpenClipboard")
	procCloseClipboard   = user32.NewProc("CloseClipboard")
	procGetClipboardData = user32.NewProc("GetClipboardData")
	procGlobalLock       = kernel32.NewProc("GlobalLock")
	procGlobalUnlock     = kernel32.NewProc("GlobalUnlock")
)

const cfUnicodeText = 13

var errClipboardBusy = errors.New("clipboard: open failed")

// win32Provider reads CF_UNICODETEXT through user32.
type win32Provider struct{}

// New returns the clipboard provider for this system.
func New() Provider {
	if err := user32.Load(); err != nil {
		return unavailable{}
	}
	return win32Provider{}
}

func (win32Provider) Name() string { return "user32" }

func (win32Provider) ReadText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r, _, _ := procOpenClipboard.Call(0); r == 0 {
		return "", errClipboardBusy
	}
	defer procCloseClipboard.Call()

	h, _, _ := procGetClipboardData.Call(cfUnicodeText)
	if h == 0 {
		// No text on the clipboard.
		return "", nil
	}
	ptr, _, _ := procGlobalLock.Call(h)
	if ptr == 0 {
		return "", nil
	}
	defer procGlobalUnlock.Call(h)

	return windows.UTF16PtrToString((*uint16)(unsafe.Pointer(ptr))), nil
}
