// Package compression shrinks disk images for storage and transfer.
//
// Images are mostly empty sectors, so they're run-length encoded first and the
// result is gzipped. A freshly formatted 1.44M floppy comes out at a few
// hundred bytes.
//
// The run-length encoding is RLE8, the scheme BMP files use. A byte that occurs
// N >= 2 times in a row is written twice, followed by an unsigned byte giving
// how many more times it occurred:
//
//	WXXXXXXXXXXXXXXXYZZ
//	W XX 13 Y ZZ 0
//
// One group holds a run of up to 257 bytes; longer runs are split, so 300 X's
// become `XX 255 XX 41`. A pair of identical bytes costs three bytes, since the
// byte is its own escape.
//
// [CompressDevice] and [DecompressToDevice] move images between this format and
// a [kfs.BlockDevice] directly.
package compression
