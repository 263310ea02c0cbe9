// Package delivery hands converted outputs to a storage backend.
//
// The direct backend leaves the output for the HTTP handler to stream back.
// The local, s3, gcs and sftp backends store it and return a Location
// describing where it went.
package delivery
