package output

import (
	"os"

	"github.com/fatih/color"
)

var (
	// Change colors
	Added    = color.New(color.FgGreen)
	Removed  = color.New(color.FgRed)
	Modified = color.New(color.FgYellow)

	// Version state colors
	Update    = color.New(color.FgMagenta, color.Bold)
	Unchanged = color.New(color.Faint)

	// Message colors
	Success = color.New(color.FgGreen)
	Warning = color.New(color.FgYellow)
	Error   = color.New(color.FgRed)
	Info    = color.New(color.FgCyan)
	Dim     = color.New(color.Faint)

	// Structural colors
	Header = color.New(color.FgWhite, color.Bold)
	Source = color.New(color.FgBlue, color.Bold)
)

// NoColor disables color output
func NoColor() {
	color.NoColor = true
}

// ForceColor enables color output even when not a TTY
func ForceColor() {
	color.NoColor = false
}

// IsTerminal returns true if stdout is a terminal
func IsTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// ChangeColor returns the color for a change verb ("Added", "Removed", "Modified")
func ChangeColor(verb string) *color.Color {
	switch verb {
	case "Added":
		return Added
	case "Removed":
		return Removed
	case "Modified":
		return Modified
	default:
		return color.New(color.Reset)
	}
}

// PrintSuccess prints a success message
func PrintSuccess(format string, args ...interface{}) {
	Success.Printf("✓ "+format+"\n", args...)
}

// PrintError prints an error message
func PrintError(format string, args ...interface{}) {
	Error.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

// PrintWarning prints a warning message
func PrintWarning(format string, args ...interface{}) {
	Warning.Printf("⚠ "+format+"\n", args...)
}

// PrintInfo prints an info message
func PrintInfo(format string, args ...interface{}) {
	Info.Printf("→ "+format+"\n", args...)
}

// Sprintf returns a colored string without printing
func Sprintf(c *color.Color, format string, args ...interface{}) string {
	return c.Sprintf(format, args...)
}

// FormatChange colors a summary line such as "Added 3 hats" by its leading verb
func FormatChange(line string) string {
	for _, verb := range []string{"Added", "Removed", "Modified"} {
		if len(line) > len(verb) && line[:len(verb)] == verb && line[len(verb)] == ' ' {
			return ChangeColor(verb).Sprint(line)
		}
	}
	return line
}

// FormatSource formats a source name with color
func FormatSource(name string) string {
	return Source.Sprint(name)
}

// FormatVersion formats a version, highlighting it when it is an update.
// An empty version renders as "unknown".
func FormatVersion(v string, isUpdate bool) string {
	if v == "" {
		return Dim.Sprint("unknown")
	}
	if isUpdate {
		return Update.Sprint(v)
	}
	return v
}
