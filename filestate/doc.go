/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package filestate provides read access to the persisted per-file upload progress ledger.
// The ledger is owned by the chunk persistence layer; the upload limiter only queries it to tell
// a stalled upload from a finished one when tracking entries expire.
package filestate
