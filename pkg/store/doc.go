// Package store persists chat sessions as JSON documents keyed by session id.
//
// The default backend keeps one pretty-printed file per session under a
// "chats" directory (the directory entry IS the record); a SQLite backend
// implements the same Store interface for hosts that prefer a single
// database file. Listing repairs derived metadata: the id reported for a
// record always matches its filename stem, and a missing timestamp is
// synthesized from file metadata so ordering stays stable.
package store
