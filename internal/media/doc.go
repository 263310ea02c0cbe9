// Package media provides the in-process image helpers used around the
// engine: format sniffing, header-only dimension probing, size-constrained
// decoding and fitting still images onto a fixed canvas for animation frames.
package media
