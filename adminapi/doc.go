/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package adminapi provides HTTP endpoints for managing the upload limiter at runtime.
// Master rate ceilings can be read and changed, and tracked requests can be inspected and controlled.
package adminapi
