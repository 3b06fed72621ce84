// Package device is the bridge's read-only view of the device registry.
//
// A Registry lists the devices that belong to one owner. Rows come from a
// Repository: SQLiteRepository for the local database (optionally seeded from
// YAML) or PostgresRepository for a hosted devices table. Ownership is the
// only access rule: a device is never returned to any owner but its own, even
// when two owners use the same ID.
package device
