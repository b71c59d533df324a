package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"concierge/api/internal/tree"
)

func sampleTree() *tree.Node {
	return &tree.Node{
		ID:   "root",
		Kind: "root",
		Name: "Hotel Meridian",
		Children: []*tree.Node{
			{ID: "c1", Kind: "category", Name: "Dining", Children: []*tree.Node{
				{
					ID: "f1", Kind: "field", Name: "Breakfast",
					Value:       "7-10",
					Description: "Buffet",
					Attributes:  []tree.Attribute{{ID: "a1", Key: "location", Value: "Lobby restaurant"}},
				},
			}},
			{ID: "c2", Kind: "category", Name: "Rooms"},
		},
	}
}

func TestExportCSV(t *testing.T) {
	svc := NewService()
	result, err := svc.Export(sampleTree(), FormatCSV)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if result.Filename != "Hotel-Meridian.csv" {
		t.Errorf("filename = %q", result.Filename)
	}

	rows, err := csv.NewReader(strings.NewReader(string(result.Data))).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	// header + root + 2 categories + 1 field + 1 attribute
	if len(rows) != 6 {
		t.Fatalf("row count = %d, want 6", len(rows))
	}
	if rows[0][0] != "path" {
		t.Errorf("header = %v", rows[0])
	}

	var fieldRow, attrRow []string
	for _, row := range rows[1:] {
		switch {
		case row[2] == "Breakfast":
			fieldRow = row
		case row[1] == "attribute":
			attrRow = row
		}
	}
	if fieldRow == nil || fieldRow[0] != "Hotel Meridian > Dining > Breakfast" || fieldRow[3] != "7-10" {
		t.Errorf("field row = %v", fieldRow)
	}
	if attrRow == nil || attrRow[2] != "location" || attrRow[3] != "Lobby restaurant" {
		t.Errorf("attribute row = %v", attrRow)
	}
}

func TestExportText(t *testing.T) {
	svc := NewService()
	result, err := svc.Export(sampleTree(), FormatText)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	text := string(result.Data)

	if !strings.Contains(text, "Hotel Meridian\n") {
		t.Errorf("missing root line:\n%s", text)
	}
	if !strings.Contains(text, "  Dining\n") {
		t.Errorf("category not indented one level:\n%s", text)
	}
	if !strings.Contains(text, "    Breakfast: 7-10\n") {
		t.Errorf("field line wrong:\n%s", text)
	}
	if !strings.Contains(text, "- location: Lobby restaurant") {
		t.Errorf("attribute missing:\n%s", text)
	}
}

func TestExportJSONRoundTrips(t *testing.T) {
	svc := NewService()
	result, err := svc.Export(sampleTree(), FormatJSON)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if result.MimeType != "application/json" {
		t.Errorf("mime = %q", result.MimeType)
	}

	var root tree.Node
	if err := json.Unmarshal(result.Data, &root); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if tree.Find(&root, "f1").Value != "7-10" {
		t.Error("content lost in JSON export")
	}
}

func TestExportHTML(t *testing.T) {
	svc := NewService()
	result, err := svc.Export(sampleTree(), FormatHTML)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	html := string(result.Data)

	for _, want := range []string{"<title>Hotel Meridian</title>", "Breakfast", "7-10", "Lobby restaurant", "kind-category"} {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q", want)
		}
	}
}

func TestExportHTMLEscapesContent(t *testing.T) {
	svc := NewService()
	root := &tree.Node{
		ID: "root", Kind: "root", Name: "Hotel",
		Children: []*tree.Node{
			{ID: "f1", Kind: "field", Name: "Note", Value: `<script>alert("x")</script>`},
		},
	}
	result, err := svc.Export(root, FormatHTML)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(result.Data), "<script>alert") {
		t.Error("value not escaped in HTML export")
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	svc := NewService()
	if _, err := svc.Export(sampleTree(), Format("docx")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestExportNilTree(t *testing.T) {
	svc := NewService()
	if _, err := svc.Export(nil, FormatJSON); !errors.Is(err, ErrContentUnavailable) {
		t.Errorf("err = %v, want ErrContentUnavailable", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"Hotel Meridian":  "Hotel-Meridian",
		"Café  Köln!":     "Caf--Kln",
		"":                "hotel",
		strings.Repeat("a", 80): strings.Repeat("a", 50),
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
