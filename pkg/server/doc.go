// Package server runs the gateway's HTTP front: the moderated streaming
// endpoint, health, metrics, and the internal resource-release hook, with
// graceful shutdown. TLS, CORS, and authentication are expected to live in
// front of this server.
package server
