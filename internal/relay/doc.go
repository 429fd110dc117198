// Package relay accepts miner connections and relays each one to its pool
// through the configured upstream dialer.
//
// Every accepted connection becomes a Session running on its own goroutine:
// it resolves the miner's pool, dials it, then copies frames in both
// directions while decoding them for logs and reporting them as telemetry.
// The Server owns the Registry of live sessions, sweeps terminated ones and
// periodically submits aggregate statistics.
package relay
