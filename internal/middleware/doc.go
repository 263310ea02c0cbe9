// Package middleware provides HTTP middleware for the converter API.
//
// It includes:
//   - Request ids (X-Request-ID), generated with google/uuid
//   - Request logging in W3C Extended Log Format
//   - Gzip compression of JSON responses
//   - Prometheus request metrics labeled by route template
package middleware
