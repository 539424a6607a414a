package errors

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Level represents the severity of a TransformError.
type Level string

const (
	Error   Level = "error"
	Warning Level = "warning"
	Note    Level = "note"
)

// Location pinpoints where in the IR a TransformError occurred: the
// function (and, where relevant, the block) a pass was working on when
// it had to stop. IR has no source text of its own, so this stands in
// for the line/column a front-end diagnostic would carry.
type Location struct {
	Function string
	Block    string // optional
}

func (l Location) String() string {
	if l.Block == "" {
		return "@" + l.Function
	}
	return fmt.Sprintf("@%s/%s", l.Function, l.Block)
}

// TransformError is a structured, coded error raised by a pass.
type TransformError struct {
	Level    Level
	Code     string
	Message  string
	Pass     string // pass name, e.g. "flatten"
	Where    Location
	Notes    []string
	HelpText string
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("[%s] %s[%s]: %s (%s)", e.Pass, e.Level, e.Code, e.Message, e.Where)
}

// New builds an error-level TransformError.
func New(pass, code, message string, where Location) *TransformError {
	return &TransformError{Level: Error, Code: code, Message: message, Pass: pass, Where: where}
}

// WithNote appends a note and returns the same error, for fluent construction.
func (e *TransformError) WithNote(note string) *TransformError {
	e.Notes = append(e.Notes, note)
	return e
}

// WithHelp sets the error's help text and returns the same error.
func (e *TransformError) WithHelp(help string) *TransformError {
	e.HelpText = help
	return e
}

// Reporter formats TransformErrors for the CLI's diagnostic stream,
// colored the way the teacher toolchain's own CLI reporter is.
type Reporter struct{}

// NewReporter creates a new diagnostic reporter.
func NewReporter() *Reporter { return &Reporter{} }

// Format renders err as a multi-line, colored diagnostic.
func (r *Reporter) Format(err *TransformError) string {
	var b strings.Builder

	levelColor := r.levelColor(err.Level)
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()
	passPrefix := fmt.Sprintf("[%s]", err.Pass)

	b.WriteString(fmt.Sprintf("%s %s[%s]: %s\n", bold(passPrefix), levelColor(string(err.Level)), err.Code, err.Message))
	b.WriteString(fmt.Sprintf("  %s %s\n", dim("-->"), err.Where))

	for _, note := range err.Notes {
		noteColor := color.New(color.FgBlue).SprintFunc()
		b.WriteString(fmt.Sprintf("  %s %s\n", noteColor("note:"), note))
	}
	if err.HelpText != "" {
		helpColor := color.New(color.FgGreen).SprintFunc()
		b.WriteString(fmt.Sprintf("  %s %s\n", helpColor("help:"), err.HelpText))
	}
	return b.String()
}

func (r *Reporter) levelColor(level Level) func(...interface{}) string {
	switch level {
	case Error:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case Note:
		return color.New(color.FgBlue, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}
