package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"concierge/api/internal/tree"
)

// Service renders a tree into the requested format. The caller resolves the
// version (live tree or a historical revision) before handing it over.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Export generates an export of the given tree in the requested format.
func (s *Service) Export(root *tree.Node, format Format) (*Result, error) {
	if root == nil {
		return nil, ErrContentUnavailable
	}

	switch format {
	case FormatCSV:
		return exportCSV(root)
	case FormatText:
		return exportText(root)
	case FormatJSON:
		return exportJSON(root)
	case FormatHTML:
		html, err := renderHTML(root)
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(root.Name) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		html, err := renderHTML(root)
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		return exportPDF(html, root.Name)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// exportCSV flattens the tree into path/name/value/description rows.
func exportCSV(root *tree.Node) (*Result, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"path", "kind", "name", "value", "description"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	var walk func(n *tree.Node, path []string) error
	walk = func(n *tree.Node, path []string) error {
		full := append(path, n.Name)
		if err := w.Write([]string{strings.Join(full, " > "), n.Kind, n.Name, n.Value, n.Description}); err != nil {
			return err
		}
		for _, attr := range n.Attributes {
			row := []string{strings.Join(full, " > "), "attribute", attr.Key, attr.Value, ""}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		for _, child := range n.Children {
			if err := walk(child, full); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root, nil); err != nil {
		return nil, fmt.Errorf("write csv rows: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return &Result{
		Data:     buf.Bytes(),
		Filename: sanitizeFilename(root.Name) + ".csv",
		MimeType: "text/csv; charset=utf-8",
	}, nil
}

// exportText renders an indented outline, two spaces per level.
func exportText(root *tree.Node) (*Result, error) {
	var buf bytes.Buffer

	var walk func(n *tree.Node, depth int)
	walk = func(n *tree.Node, depth int) {
		indent := strings.Repeat("  ", depth)
		line := indent + n.Name
		if n.Value != "" {
			line += ": " + n.Value
		}
		buf.WriteString(line + "\n")
		if n.Description != "" {
			buf.WriteString(indent + "  (" + n.Description + ")\n")
		}
		for _, attr := range n.Attributes {
			buf.WriteString(indent + "  - " + attr.Key + ": " + attr.Value + "\n")
		}
		for _, child := range n.Children {
			walk(child, depth+1)
		}
	}
	walk(root, 0)

	return &Result{
		Data:     buf.Bytes(),
		Filename: sanitizeFilename(root.Name) + ".txt",
		MimeType: "text/plain; charset=utf-8",
	}, nil
}

func exportJSON(root *tree.Node) (*Result, error) {
	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tree: %w", err)
	}
	return &Result{
		Data:     append(data, '\n'),
		Filename: sanitizeFilename(root.Name) + ".json",
		MimeType: "application/json",
	}, nil
}

// sanitizeFilename creates a safe filename from a hotel name
func sanitizeFilename(title string) string {
	result := ""
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			result += string(r)
		case r == ' ':
			result += "-"
		case r == '-', r == '_':
			result += string(r)
		default:
			// Skip other characters
		}
	}

	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "hotel"
	}
	return result
}
