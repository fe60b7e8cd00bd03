// Package middleware provides the HTTP middleware chain for the gateway:
// request id assignment, panic recovery, and access logging.
package middleware
