package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"

	"concierge/api/internal/tree"
)

//go:embed templates/*.html
var templateFS embed.FS

var documentTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
	}

	templateContent, err := templateFS.ReadFile("templates/document.html")
	if err != nil {
		// Fallback to built-in template if file not found
		documentTemplate = template.Must(template.New("document").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	documentTemplate = template.Must(template.New("document").Funcs(funcMap).Parse(string(templateContent)))
}

// templateNode is the recursive view of one tree node.
type templateNode struct {
	Name        string
	Kind        string
	Value       string
	Description string
	Attributes  []templateAttr
	Children    []templateNode
	Depth       int
}

type templateAttr struct {
	Key   string
	Value string
}

// templateData holds data for document template rendering
type templateData struct {
	Title string
	Root  templateNode
}

func toTemplateNode(n *tree.Node, depth int) templateNode {
	out := templateNode{
		Name:        n.Name,
		Kind:        n.Kind,
		Value:       n.Value,
		Description: n.Description,
		Depth:       depth,
	}
	for _, attr := range n.Attributes {
		out.Attributes = append(out.Attributes, templateAttr{Key: attr.Key, Value: attr.Value})
	}
	for _, child := range n.Children {
		out.Children = append(out.Children, toTemplateNode(child, depth+1))
	}
	return out
}

// renderHTML renders the document template for a tree.
func renderHTML(root *tree.Node) (string, error) {
	data := templateData{
		Title: root.Name,
		Root:  toTemplateNode(root, 0),
	}
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
</head>
<body>
  <h1>{{.Title}}</h1>
  {{template "node" .Root}}
</body>
</html>
{{define "node"}}
<div>
  <strong>{{.Name}}</strong>{{if .Value}}: {{.Value}}{{end}}
  {{range .Children}}{{template "node" .}}{{end}}
</div>
{{end}}`
