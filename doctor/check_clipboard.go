package doctor

import (
	"fmt"
	"time"

	"monologue/clipboard"
)

func checkClipboard(r *runner) bool {
	if !clipboard.Available() {
		return r.failf("%v", clipboard.ErrUnavailable)
	}
	testStr := fmt.Sprintf("monologue-doctor-%d", time.Now().UnixNano())

	if err := clipboard.Copy(testStr); err != nil {
		return r.failf("clipboard write failed: %v", err)
	}
	got, err := clipboard.Read()
	if err != nil {
		return r.failf("clipboard read failed: %v", err)
	}
	if got != testStr {
		return r.failf("clipboard mismatch: wrote %q, got %q", testStr, got)
	}
	return r.passf("clipboard write/read verified")
}
