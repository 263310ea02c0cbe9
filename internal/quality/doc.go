// Package quality maps the low/medium/high quality setting and related knobs
// onto encoder parameters.
//
// All per-codec numbers live in one table keyed by (container, codec). Each
// row records which flag it drives and whether lower or higher values mean
// better output, since a CRF, a quantizer and a bitrate do not share an
// ordering. Codecs without a row return ErrNoQualityTable; callers decide on
// an explicit, logged fallback.
package quality
