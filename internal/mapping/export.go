package mapping

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ExportFunctions writes the function file to path in block style.
// Multi-line strings use the literal style so templates stay readable.
func ExportFunctions(file *FunctionFile, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := EncodeFunctions(file, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// EncodeFunctions writes the function file as YAML to w.
func EncodeFunctions(file *FunctionFile, w io.Writer) error {
	names := make([]string, 0, len(file.Functions))
	for name := range file.Functions {
		names = append(names, name)
	}
	sort.Strings(names)

	functions := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range names {
		def := file.Functions[name]
		body := &yaml.Node{Kind: yaml.MappingNode}
		// Keys in sorted order.
		for _, kv := range [][2]string{
			{"log_time_template", def.LogTimeTemplate},
			{"publish_time_template", def.PublishTimeTemplate},
			{"schema_name", def.SchemaName},
			{"template", def.Template},
		} {
			body.Content = append(body.Content, keyNode(kv[0]), valueNode(kv[1], kv[0] != "template"))
		}
		functions.Content = append(functions.Content, keyNode(name), body)
	}

	root := &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{keyNode("functions"), functions}}
	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode converter functions: %w", err)
	}
	return enc.Close()
}

func keyNode(key string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
}

// valueNode renders empty optional values as null.
func valueNode(value string, optional bool) *yaml.Node {
	if value == "" && optional {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
	if strings.Contains(value, "\n") {
		n.Style = yaml.LiteralStyle
	}
	return n
}
