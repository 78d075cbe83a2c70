// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/ordermap/ordermap/cmd"
)

var Version = "development"

func main() {
	cmd.Execute(Version)
}
