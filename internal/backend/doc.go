// Package backend talks to the services the relay depends on but does not
// own: the destination lookup that maps a miner's address to its pool, and
// the telemetry endpoints that receive packet events and aggregate usage.
//
// Destinations can be resolved over HTTP, from a MySQL table, or from Redis
// hashes; all three satisfy Resolver. Telemetry is submitted as HTTP form
// posts using the field names the backend panel expects.
package backend
