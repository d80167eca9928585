package codegen

import (
	"fmt"
	"strings"
	"text/template"
)

// funcMap provides helper functions available to the skeleton template.
var funcMap = template.FuncMap{
	"indent": indent,
	"quote":  func(s string) string { return fmt.Sprintf("%q", s) },
}

// skeleton is the program layout every generated script shares.
var skeleton = template.Must(template.New("skeleton").Funcs(funcMap).Parse(skeletonTmpl))

// indent prefixes every non-empty line of s with n spaces.
func indent(n int, s string) string {
	pad := strings.Repeat(" ", n)
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = pad + l
		}
	}
	return strings.Join(lines, "\n")
}

// --- Template data types ---

// skeletonData holds the rendered fragments of every accepted instance.
type skeletonData struct {
	Project   string
	Imports   []string
	Instances []renderedInstance
}

type renderedInstance struct {
	Var     string
	SpecID  string
	Wiring  string
	Init    string
	Loop    string
	Cleanup string
}

// --- Template definitions ---

const skeletonTmpl = `#!/usr/bin/env python3
# {{if .Project}}{{.Project}}: {{end}}pin numbers use BCM numbering.
{{range .Imports}}{{.}}
{{end}}import time
{{range .Instances}}
# {{.SpecID}}{{if .Wiring}} on {{.Wiring}}{{end}}
{{if .Init}}{{.Init}}
{{end}}{{end}}

def main():
    try:
        while True:
{{- range .Instances}}{{if .Loop}}
{{indent 12 .Loop}}{{end}}{{end}}
            time.sleep(0.5)
    except KeyboardInterrupt:
        pass
    finally:
{{- range .Instances}}{{if .Cleanup}}
{{indent 8 .Cleanup}}{{end}}{{end}}
        print({{quote "done"}})


if __name__ == "__main__":
    main()
`
