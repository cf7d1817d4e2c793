package formatters

import (
	"encoding/hex"
)

// HexDump renders data in the canonical offset/hex/ASCII layout, preceded by
// caption when it is not empty. The result ends with a newline.
func HexDump(data []byte, caption string) []byte {
	dump := hex.Dump(data)
	out := make([]byte, 0, len(caption)+1+len(dump))
	if caption != "" {
		out = append(out, caption...)
		out = append(out, '\n')
	}
	if len(data) == 0 {
		return append(out, "(0 bytes)\n"...)
	}
	return append(out, dump...)
}
