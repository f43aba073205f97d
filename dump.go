package hstore

import (
	"fmt"
	"strings"
)

// Dump renders the group's sub-tree as indented text, one line per node or
// group, with value kinds and array shapes. Values are decoded but large
// payloads are summarized, so dumping stays cheap.
func Dump(g *Group) string {
	var buf strings.Builder
	dumpInto(&buf, g, 0)
	return buf.String()
}

func dumpInto(buf *strings.Builder, g *Group, depth int) {
	indent := strings.Repeat("  ", depth)
	name := g.name
	if name == "" {
		name = "/"
	}
	fmt.Fprintf(buf, "%s%s/\n", indent, name)
	for _, key := range g.ListNodes() {
		v, err := g.Get(key)
		if err != nil {
			fmt.Fprintf(buf, "%s  %s = !%v\n", indent, key, err)
			continue
		}
		fmt.Fprintf(buf, "%s  %s = %s\n", indent, key, summarizeValue(v))
	}
	for _, sub := range g.ListGroups() {
		dumpInto(buf, g.Group(sub), depth+1)
	}
}

func summarizeValue(v any) string {
	switch v := v.(type) {
	case *NDArray:
		return fmt.Sprintf("array<%v>%v", v.Elem, v.Shape)
	case *Ragged:
		return fmt.Sprintf("ragged<%v>", v.Elem)
	case []byte:
		return fmt.Sprintf("bytes(%d)", len(v))
	case []string:
		return fmt.Sprintf("strings(%d)", len(v))
	case map[string]any:
		return fmt.Sprintf("map(%d){%s}", len(v), strings.Join(sortedKeys(v), " "))
	case string:
		if len(v) > 64 {
			return fmt.Sprintf("%q...", v[:64])
		}
		return fmt.Sprintf("%q", v)
	default:
		return fmt.Sprint(v)
	}
}
