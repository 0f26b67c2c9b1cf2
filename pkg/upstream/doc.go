/*
Package upstream provides the client adapter for the cluster management
API that Hivemon monitors.

The adapter speaks the PVE-style JSON API: every response is wrapped in
a {"data": ...} envelope, node listings come from /api2/json/nodes, and
per-node history from /api2/json/nodes/{node}/rrddata. Raw records are
normalized into pkg/types values at this boundary: statuses outside
the known set become "unknown", cpu fractions are clamped to [0,1], and
used/total pairs are reconciled so the snapshot invariants hold before
anything downstream sees the data.

# TLS policy

Certificate verification is configured per client instance through its
own http.Transport. Creating one client with SkipTLSVerify and another
without is safe; there is no process-wide TLS state and therefore no
ordering hazard between adapter instances.

# Failure contract

Callers treat every error from this package as opaque: a timeout, a
connection refusal, and an HTTP 500 all surface the same way. The
multiplexer turns any of them into a single error event for the cycle
and retries on the next tick.

# Usage

	client, err := upstream.NewClient(upstream.Config{
		BaseURL:        "https://pve.example.com:8006",
		TokenID:        "monitor@pve!dashboard",
		Secret:         secret,
		RequestTimeout: 10 * time.Second,
	})
	if err != nil {
		return err
	}

	snap, err := client.ClusterSummary(ctx)
	series, err := client.NodeMetrics(ctx, "pve1", 3600)
*/
package upstream
