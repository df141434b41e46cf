package schema

import (
	"regexp"
	"strings"
)

var (
	nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)
	nonWord  = regexp.MustCompile(`[^a-zA-Z0-9_]`)
)

// SanitizeSchemaName turns a topic such as "/gps/fix_data" into a valid ROS 2
// message type name such as "_gps/FixData".
func SanitizeSchemaName(name string) string {
	parts := strings.Split(name, "/")
	pkg := strings.Join(parts[:len(parts)-1], "/")
	pkg = strings.ToLower(nonAlnum.ReplaceAllString(pkg, "_"))

	msg := nonWord.ReplaceAllString(parts[len(parts)-1], "_")
	var b strings.Builder
	for _, part := range strings.Split(msg, "_") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(strings.ToLower(part[1:]))
	}
	return pkg + "/" + b.String()
}

// SanitizeFieldName turns a column name into a valid ROS 2 field name.
func SanitizeFieldName(key string) string {
	return strings.ToLower(nonWord.ReplaceAllString(key, "_"))
}
