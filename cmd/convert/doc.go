// Command convert converts local files with the same core the server uses.
//
// Usage:
//
//	convert [flags] <input>
//	convert -gif [flags] <image>...
//	convert -pdf images|merge|split [-page N] <file>...
//	convert -list
//
// The output goes next to the first input with the new extension unless -o
// names a file. "-o -" writes to stdout, which is refused when stdout is a
// terminal unless -force is given.
//
// Environment:
//
//	ENGINE           - process (default) or wasm
//	FFMPEG_PATH      - ffmpeg binary for the process engine (default: ffmpeg)
//	GIFSICLE_PATH    - optional GIF optimizer (default: gifsicle)
//	FFMPEG_WASM_PATH - ffmpeg WASM module for the wasm engine
package main
