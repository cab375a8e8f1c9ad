// SPDX-License-Identifier: MPL-2.0

//go:build windows

package watch

import "syscall"

// Win32 codes: ERROR_TOO_MANY_OPEN_FILES, ERROR_INVALID_HANDLE (the watched
// directory went away) and ERROR_NOT_ENOUGH_MEMORY.
var unrecoverableErrnos = []syscall.Errno{4, 6, 8}
