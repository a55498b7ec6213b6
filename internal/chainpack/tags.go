// Package chainpack implements the self-delimiting ChainPack binary codec
// for the SHV value model.
package chainpack

// Control bytes. 0x8b is reserved exclusively for the Meta marker; a
// decoder can't otherwise tell whether a standalone 0x8b introduces meta
// or a DateTime value, so DateTime gets its own byte, 0x8f, out of the
// unused part of the control range.
const (
	tagFalse       byte = 0x80
	tagTrue        byte = 0x81
	tagInt         byte = 0x82
	tagUInt        byte = 0x83
	tagDouble      byte = 0x84
	tagDecimal     byte = 0x85
	tagBlob        byte = 0x86
	tagString      byte = 0x87
	tagListBegin   byte = 0x88
	tagMapBegin    byte = 0x89
	tagIMapBegin   byte = 0x8a
	tagMeta        byte = 0x8b
	tagCString     byte = 0x8c // legacy null-terminated string, decode-only
	tagFalseLegacy byte = 0x8d // legacy alias of False, decode-only
	tagNull        byte = 0x8e
	tagDateTime    byte = 0x8f
	tagTerminator  byte = 0xff
)

// compactMax is the highest value (0-63) a non-negative Int may encode as
// directly, with no type tag, when written as a list element, map
// value, or other generic Value position. UInt values are always tagged
// (0x83) to keep the compact form unambiguous: a bare byte < 0x40 always
// decodes to KindInt, never KindUInt.
const compactMax = 63
