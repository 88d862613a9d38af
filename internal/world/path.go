package world

import "strings"

// ShortTypePath strips module prefixes from a fully qualified type path,
// including inside generic arguments:
//
//	demo::physics::Velocity            -> Velocity
//	core::asset::Handle<demo::Material> -> Handle<Material>
func ShortTypePath(path string) string {
	var out strings.Builder
	segStart := 0
	flush := func(end int) {
		seg := path[segStart:end]
		if i := strings.LastIndex(seg, "::"); i >= 0 {
			seg = seg[i+2:]
		}
		out.WriteString(seg)
	}
	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '<', '>', ',', ' ', '(', ')', '[', ']', ';', '&':
			flush(i)
			out.WriteByte(path[i])
			segStart = i + 1
		}
	}
	flush(len(path))
	return out.String()
}
