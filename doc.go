// Package uhdrbake bakes UltraHDR JPEG/R containers from HDR/SDR JPEG pairs
// and splices Motion Photo containers (JPEG + video clip).
//
// The package is a pragmatic pure-Go implementation focused on correctness and
// portability. It classifies which of two unordered inputs is the HDR source,
// derives a gain map in linear light, and assembles the JPEG/R container
// (MPF + XMP + ISO 21496-1 gain map metadata) in Go. The pixel codec is
// injected; the standard image/jpeg package is the default.
package uhdrbake
