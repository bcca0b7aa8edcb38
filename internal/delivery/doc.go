// Package delivery is the deduplicate-and-deliver core.
//
// A Runner executes one cycle: it loads the ledger, then for every channel
// concurrently the Coordinator asks the Selector for the first unsent image
// and hands it to the transport. Each success is recorded and the whole
// ledger saved before the goroutine returns.
package delivery
