// Package store defines persistence interfaces and common store errors.
// Implementations live under internal/platform.
package store
