package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/slush-dev/chromegcm"
	"gopkg.in/yaml.v3"
)

// yamlOut prints data as a YAML document to w.
func yamlOut(w io.Writer, data any) {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	enc.Encode(data)
	enc.Close()
}

// printResult prints the outcome of a send as YAML or as a table.
func printResult(w io.Writer, result *chromegcm.Result, asYAML bool) {
	if asYAML {
		yamlOut(w, map[string][]string{
			"success": result.Success(),
			"failed":  result.Failed(),
		})
		return
	}

	fmt.Fprintf(w, "%-8s %s\n", "STATUS", "CHANNEL")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, id := range result.Success() {
		fmt.Fprintf(w, "%-8s %s\n", "ok", id)
	}
	for _, id := range result.Failed() {
		fmt.Fprintf(w, "%-8s %s\n", "failed", id)
	}
	fmt.Fprintf(w, "\n%d sent, %d failed\n", len(result.Success()), len(result.Failed()))
}
