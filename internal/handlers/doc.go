// Package handlers provides the HTTP handlers of the conversion API.
//
// It includes handlers for:
//   - Media conversion and still-image GIF assembly
//   - PDF operations (images to PDF, merge, page extraction)
//   - The format registry and conversion checks
//   - Daily usage, conversion history and cache maintenance
//   - Health, liveness, readiness and version checks
//
// Failed requests get a JSON body {"error": message, "kind": kind}. The kind
// is the conversion error kind and decides the status code.
package handlers
