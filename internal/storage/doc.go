// Package storage holds the bot's persistent state: the ledger of already
// delivered videos, the recipient registry, and the optional delivery audit
// store. The ledger and registry are small JSON documents rewritten atomically
// (tmp + rename) on mutation; the audit store is append-only with a file
// (JSON Lines) driver and an optional SQLite driver behind the "sqlite" build tag.
package storage
