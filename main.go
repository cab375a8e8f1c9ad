// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/dtcheck/dtcheck/cmd/dtcheck"

func main() {
	cmd.Execute()
}
