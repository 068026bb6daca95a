// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command weave runs and manages a triplet graph.
//
//	weave serve                      start the HTTP/websocket server
//	weave add alice knows bob        persist a triplet
//	weave list --predicate knows     exact-match lookup
//	weave remove alice               delete a node and its triplets
//	weave config init                write ~/.aleutian/weave.yaml
//
// add, list, and remove open the store directly. The badger backend allows
// one process at a time, so stop the server first or use the HTTP API.
package main

import (
	"os"

	"github.com/AleutianAI/AleutianWeave/pkg/ux"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		ux.New(os.Stderr).Error(err.Error())
		os.Exit(1)
	}
}
