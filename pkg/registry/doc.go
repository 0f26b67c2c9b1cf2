/*
Package registry persists the list of monitored upstream servers in a
local bbolt database.

Entries are stored as JSON in a single bucket keyed by ID; writes are
upserts inside bbolt transactions. The registry is a thin layer: it
backs the /api/servers CRUD surface and lets `serve` pick an
upstream by name instead of requiring a config file edit. It holds API
token secrets, so the database file is created 0600 and the API layer
strips secrets before returning entries to clients.
*/
package registry
