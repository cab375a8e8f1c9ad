// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"errors"
	"fmt"
	"testing"
)

func TestUnrecoverable(t *testing.T) {
	t.Parallel()

	for _, errno := range unrecoverableErrnos {
		if !unrecoverable(errno) {
			t.Errorf("unrecoverable(%v) = false", errno)
		}
		if !unrecoverable(fmt.Errorf("inotify_add_watch: %w", errno)) {
			t.Errorf("unrecoverable(wrapped %v) = false", errno)
		}
	}
	if unrecoverable(errors.New("event queue overflow")) {
		t.Error("unrecoverable() = true for a plain error")
	}
	if unrecoverable(nil) {
		t.Error("unrecoverable(nil) = true")
	}
}
