/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package lrucache provides in-memory cache with LRU eviction policy, expiration mechanism
// (optionally refreshed on every access), removal notifications with the cause of removal, and Prometheus metrics.
package lrucache
