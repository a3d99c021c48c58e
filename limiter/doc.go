/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package limiter keeps the in-memory state an upload server consults while transferring files:
// which requests of which clients are currently in flight (OperationRegistry),
// per-request cancellation, pause and rate assignment flags with idle expiration (RequestConfigStore),
// process-wide throughput ceilings (MasterRateConfig) and detection of clients that stopped uploading
// before their files were complete (InactivityDetector).
//
// The package does not move or throttle bytes itself. A transfer loop polls the flags stored here
// at chunk boundaries and a shaper enforces the rates assigned here.
package limiter
