// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// ask answers questions from the command line with the same orchestrator
// the server runs, in process.
//
// Usage:
//
//	ask query [--mode direct|planned] [--tools a,b] [--show-trace] <question...>
//	ask plan [--tools a,b] <question...>
//	ask tools
package main

import (
	"os"

	"github.com/awnumar/memguard"
)

func main() {
	err := newRootCmd().Execute()
	memguard.Purge()
	if err != nil {
		os.Exit(1)
	}
}
