// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import "net"

// netListen binds addr. Standard library: no library in the retrieved
// pack covers bind-and-probe-next-port, and net.Listen is the only
// correct primitive for "is this port free" (anything else races).
func netListen(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}
