// Package odoo provides whitelisted read and write operations on remote
// models.
//
// Every read takes an explicit field whitelist and returns only those
// fields, even if the server sends more. The AllFields variants bypass the
// whitelist for exploration and log a warning on each use.
package odoo
