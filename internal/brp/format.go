package brp

import (
	"fmt"
	"strings"
)

// Format is a text encoding negotiated per session.
type Format int

const (
	FormatJSON Format = iota
	FormatJSON5
	FormatRON
)

// String returns the wire tag of the format.
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "JSON"
	case FormatJSON5:
		return "JSON5"
	case FormatRON:
		return "RON"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat parses a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "JSON":
		return FormatJSON, nil
	case "JSON5":
		return FormatJSON5, nil
	case "RON":
		return FormatRON, nil
	default:
		return 0, fmt.Errorf("unknown format %q (expected json, json5 or ron)", s)
	}
}
