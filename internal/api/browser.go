package api

import (
	"fmt"
	"io"

	"github.com/pkg/browser"
)

var openURL = browser.OpenURL

func init() {
	// Launcher chatter would interleave with the chat prompt.
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
}

// OpenBrowser asks the desktop to open target in the default browser.
func OpenBrowser(target string) error {
	if err := openURL(target); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
