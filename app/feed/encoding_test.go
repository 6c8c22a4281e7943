package feed

import (
	"testing"
)

func TestDetectEncoding(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		contentType string
		expected    string
	}{
		{"default", `<rss></rss>`, "", "utf-8"},
		{"xml declaration", `<?xml version="1.0" encoding="ISO-8859-1"?><rss></rss>`, "", "windows-1252"},
		{"single quotes", `<?xml version='1.0' encoding='koi8-r'?><rss></rss>`, "", "koi8-r"},
		{"header wins", `<?xml version="1.0" encoding="koi8-r"?><rss></rss>`, "text/xml; charset=utf-8", "utf-8"},
		{"bom wins", "\xef\xbb\xbf<?xml version=\"1.0\" encoding=\"koi8-r\"?><rss/>", "", "utf-8"},
		{"unknown label", `<?xml version="1.0" encoding="x-bogus"?><rss></rss>`, "", "utf-8"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := DetectEncoding([]byte(test.data), test.contentType)
			if result != test.expected {
				t.Errorf("Expected %q, got: %q", test.expected, result)
			}
		})
	}
}

func TestReencoder(t *testing.T) {
	latin, err := NewReencoder("windows-1252")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if latin.Name() != "windows-1252" {
		t.Errorf("Expected name 'windows-1252', got: %s", latin.Name())
	}

	if result := latin.String("Café Ω"); result != "Café &#937;" {
		t.Errorf("Expected unsupported rune as character reference, got: %q", result)
	}

	utf8, err := NewReencoder("UTF-8")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if result := utf8.String("Ω ok"); result != "Ω ok" {
		t.Errorf("Expected UTF-8 text to pass through, got: %q", result)
	}

	if result := utf8.String("bad\xffbyte"); result != "bad�byte" {
		t.Errorf("Expected invalid bytes to be replaced, got: %q", result)
	}

	if _, err := NewReencoder("x-bogus"); err == nil {
		t.Error("Expected error for unknown encoding")
	}
}
