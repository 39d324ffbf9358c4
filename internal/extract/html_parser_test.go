package extract

import (
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genSimpleClassName generates simple CSS class names
func genSimpleClassName() gopter.Gen {
	return gen.RegexMatch(`^[a-z][a-z0-9_-]{0,10}$`)
}

// TestHTMLCSSExtraction checks the CSS selector path of HTMLParser.
func TestHTMLCSSExtraction(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("CSS selector extracts version from class selector", prop.ForAll(
		func(className, v string) bool {
			html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body>
<div class="%s">%s</div>
</body>
</html>`, className, v)

			p := &HTMLParser{Selector: "." + className}
			got, err := p.Parse([]byte(html))
			if err != nil {
				t.Logf("Parse failed: %v", err)
				return false
			}
			return got == v
		},
		genSimpleClassName(),
		genVersion(),
	))

	properties.TestingRun(t)
}

const storePage = `<!DOCTYPE html>
<html>
<head><title>Fun Run 4 for Android</title></head>
<body>
<div class="detail">
  <table>
    <tr><th>Version</th><td class="version">2.31.0</td></tr>
    <tr><th>Size</th><td>180 MB</td></tr>
  </table>
</div>
</body>
</html>`

func TestHTMLParser(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		xpath    string
		regex    string
		want     string
		wantErr  error
	}{
		{name: "css", selector: "td.version", want: "2.31.0"},
		{name: "xpath", xpath: "//td[@class='version']", want: "2.31.0"},
		{name: "css wins over xpath", selector: "td.version", xpath: "//title", want: "2.31.0"},
		{name: "regex post-filter", xpath: "//title", regex: `Run (\d+)`, want: "4"},
		{name: "missing element", selector: ".nope", wantErr: ErrNoVersionFound},
		{name: "element without version", xpath: "//th", wantErr: ErrNoVersionFound},
		{name: "regex no match", selector: "td.version", regex: `build (\d+)`, wantErr: ErrNoVersionFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewHTMLParser(tt.selector, tt.xpath, tt.regex)
			if err != nil {
				t.Fatalf("NewHTMLParser failed: %v", err)
			}

			got, err := p.Parse([]byte(storePage))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewHTMLParserErrors(t *testing.T) {
	if _, err := NewHTMLParser("", "", ""); !errors.Is(err, ErrNoSelectorOrXPath) {
		t.Errorf("error = %v, want ErrNoSelectorOrXPath", err)
	}
	if _, err := NewHTMLParser(".x", "", "(["); !errors.Is(err, ErrInvalidRegexPattern) {
		t.Errorf("error = %v, want ErrInvalidRegexPattern", err)
	}
}

func TestHTMLParserInvalidXPath(t *testing.T) {
	p := &HTMLParser{XPath: "//[["}
	_, err := p.Parse([]byte(storePage))
	if !errors.Is(err, ErrNoVersionFound) || !errors.Is(err, ErrInvalidXPath) {
		t.Errorf("Parse() error = %v, want ErrNoVersionFound wrapping ErrInvalidXPath", err)
	}
}
