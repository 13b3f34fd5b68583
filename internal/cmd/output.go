package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type outputFormat int

const (
	outputTable outputFormat = iota
	outputJSON
	outputYAML
)

func printStructured(cmd *cobra.Command, format outputFormat, v any) error {
	if format == outputYAML {
		return printYAML(cmd, v)
	}
	return printJSON(cmd, v)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	cmd.Println(string(data))
	return nil
}

// printYAML 先按 JSON 标签序列化，再转成块风格的 YAML，字段名和顺序与 JSON 输出一致
func printYAML(cmd *cobra.Command, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	blockStyle(&node)
	out, err := yaml.Marshal(&node)
	if err != nil {
		return err
	}
	cmd.Print(string(out))
	return nil
}

func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
