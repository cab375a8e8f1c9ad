// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package watch

import "syscall"

// inotify runs out of watches (ENOSPC) or descriptors (EMFILE, ENFILE) on
// large type trees; none of these clear up without user action.
var unrecoverableErrnos = []syscall.Errno{syscall.ENOSPC, syscall.EMFILE, syscall.ENFILE}
