package schema

import (
	"embed"
	"io/fs"
	"path"
	"strings"
)

// Embedded copies of the foxglove JSON schemas and the ROS 2 message
// definitions they depend on. They are used when neither a configured
// directory nor the download cache provides a definition.
//
//go:embed defs
var embedded embed.FS

func embeddedJSONSchema(name string) ([]byte, bool) {
	data, err := fs.ReadFile(embedded, path.Join("defs/jsonschema", name+".json"))
	if err != nil {
		return nil, false
	}
	return data, true
}

func embeddedMsg(pkg, name string) (string, bool) {
	data, err := fs.ReadFile(embedded, path.Join("defs/ros2", pkg, "msg", name+".msg"))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// EmbeddedJSONSchemas returns the names of the embedded JSON schemas.
func EmbeddedJSONSchemas() []string {
	entries, err := fs.ReadDir(embedded, "defs/jsonschema")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	return names
}

// EmbeddedMsgs returns the "pkg/Name" of every embedded message definition.
func EmbeddedMsgs() []string {
	var names []string
	_ = fs.WalkDir(embedded, "defs/ros2", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || path.Ext(p) != ".msg" {
			return err
		}
		// defs/ros2/<pkg>/msg/<Name>.msg
		parts := strings.Split(p, "/")
		if len(parts) == 5 {
			names = append(names, parts[2]+"/"+strings.TrimSuffix(parts[4], ".msg"))
		}
		return nil
	})
	return names
}
