package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

func success(format string, a ...any) { green.Fprintf(os.Stderr, format, a...) }

func warning(format string, a ...any) { yellow.Fprintf(os.Stderr, format, a...) }

func field(w io.Writer, name, value string) {
	cyan.Fprintf(w, "%-15s", name)
	fmt.Fprintln(w, value)
}

// failure prints title and cause to stderr and returns a short error for
// cobra, whose own error printing is silenced.
func failure(title string, cause error) error {
	red.Fprintf(os.Stderr, "%s\n", title)
	fmt.Fprintf(os.Stderr, "  %v\n", cause)
	return errors.New(title)
}
