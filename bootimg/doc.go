// Package bootimg reads and writes Android boot images.
//
// A boot image bundles a Linux kernel, a ramdisk, an optional second-stage
// bootloader and an optional device tree blob behind a fixed header carrying
// load addresses, the kernel command line, a board name and an SHA-1
// identifier. Several dialects of the container exist; this package handles
// the plain Android layout, the Bump-tagged variant, Loki-patched images and
// MTK images with per-payload sub-headers.
//
// Reading goes through a Reader session: enable one or more formats, open a
// Stream, let the formats bid on the content, then pull the header and the
// typed payload entries in file order. Writing goes through a Writer session
// bound to exactly one format: write the header, feed each entry's payload,
// and close to finalize sizes, the SHA-1 identifier and the trailer.
//
// Sessions are not safe for concurrent use. Independent sessions on
// independent streams are.
package bootimg
