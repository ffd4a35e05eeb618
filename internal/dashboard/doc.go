// Package dashboard is the client-side sync engine of the network health
// dashboard.
//
// A Session turns independently polled collector samples into view updates
// pushed to a Sink. Its parts:
//
//   - Resolve / RangeControls: range token + cadence -> bounded sample count
//   - SeriesRegistry: append-only, frozen-after-first-use DNS series order
//   - CountdownClock: time until the next sample, from the last sample seen
//   - PreferenceStore: persisted panel visibility
//   - Scheduler: fixed-delay refresh loops
//   - Dispatcher: the single entry point for user commands
//
// Updates are best effort and last-write-wins. Nothing is retried.
package dashboard
