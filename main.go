// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// com2gate - com2bus Multidrop Serial Gateway
//
// A CLI tool that relays frames between a 9th-bit marked multidrop serial
// bus and a host link, answering bus polls on behalf of the host.

package main

import (
	"os"

	"github.com/Thermoquad/com2gate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
