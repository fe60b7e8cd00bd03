// Package metrics exposes Prometheus metrics for the moderation gateway:
// stream outcomes, framer overflows, upstream rejections, moderation
// decisions, training runs, and resource pressure signals from the model
// cache and the connection pool.
package metrics
