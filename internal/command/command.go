package command

import (
	"strconv"
	"strings"
)

// Command is one parsed control line: a single-character code and its
// raw argument string.
type Command struct {
	Code byte
	Arg  string
}

// Parse splits a control line into code and argument. It returns
// ok=false for empty lines.
func Parse(line string) (Command, bool) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Command{}, false
	}
	return Command{Code: line[0], Arg: strings.TrimSpace(line[1:])}, true
}

// Int parses the argument as an integer.
func (c Command) Int() (int, error) {
	return strconv.Atoi(c.Arg)
}

// IntDefault parses the argument as an integer, returning def when the
// argument is empty (e.g. frame moves default to one frame).
func (c Command) IntDefault(def int) (int, error) {
	if c.Arg == "" {
		return def, nil
	}
	return strconv.Atoi(c.Arg)
}

// Float parses the argument as a fixed-point decimal.
func (c Command) Float() (float64, error) {
	return strconv.ParseFloat(c.Arg, 64)
}
