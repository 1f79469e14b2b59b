package fat

import (
	"bytes"
	"strings"
)

// ShortName is an 8.3 name as stored on disk: an 8-byte basename and a 3-byte
// extension, both padded with spaces, without the dot.
type ShortName [11]byte

var (
	dotName    = ShortName{'.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	dotDotName = ShortName{'.', '.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
)

func upperASCII(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

// ToShortName converts a single path component into its 8.3 form. Everything
// before the first dot is the basename, truncated to 8 characters; up to 3
// characters after that dot are the extension. Both are uppercased. Further
// dots and the characters after them are dropped.
func ToShortName(name string) ShortName {
	switch name {
	case ".":
		return dotName
	case "..":
		return dotDotName
	}

	var result ShortName
	for i := range result {
		result[i] = ' '
	}

	base := name
	extension := ""
	if dot := strings.IndexByte(name, '.'); dot >= 0 {
		base = name[:dot]
		extension = name[dot+1:]
		if next := strings.IndexByte(extension, '.'); next >= 0 {
			extension = extension[:next]
		}
	}

	for i := 0; i < len(base) && i < 8; i++ {
		result[i] = upperASCII(base[i])
	}
	for i := 0; i < len(extension) && i < 3; i++ {
		result[8+i] = upperASCII(extension[i])
	}
	return result
}

// String renders the name as NAME.EXT. Names without an extension have no dot.
func (n ShortName) String() string {
	base := string(bytes.TrimRight(n[:8], " "))
	if n == dotName || n == dotDotName {
		return base
	}

	// 0x05 in the first byte stands in for an actual 0xE5.
	if len(base) > 0 && base[0] == 0x05 {
		base = "\xe5" + base[1:]
	}

	extension := string(bytes.TrimRight(n[8:], " "))
	if extension == "" {
		return base
	}
	return base + "." + extension
}
