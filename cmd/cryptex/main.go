// main.go: cryptex command line entry point.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import "github.com/agilira/cryptex/internal/cli"

func main() {
	cli.Execute()
}
