// Package prompt asks the operator questions on a line-oriented terminal.
//
// Every question re-asks until the answer is valid. Input ending early is an
// error (ErrNoInput), which is also how scripted sessions report running out of
// answers.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNoInput is returned when input ends before a valid answer was read.
var ErrNoInput = errors.New("prompt: no more input")

// Prompter is what interactive tasks need from the operator.
type Prompter interface {
	// YesNo accepts y or n.
	YesNo(question string) (bool, error)
	// Int accepts a whole number >= min.
	Int(question string, min int) (int, error)
	// Decimal accepts a positive finite decimal number.
	Decimal(question string) (decimal.Decimal, error)
	// String returns the trimmed answer, or def when it is empty.
	String(question, def string) (string, error)
	// Required re-asks until the answer is not empty.
	Required(question string) (string, error)
	// Choose picks one of n numbered items and returns its zero-based index.
	// ok is false when the operator typed q.
	Choose(question string, n int) (idx int, ok bool, err error)
	// Confirm is true only for the literal answer "yes".
	Confirm(question string) (bool, error)
}

// Terminal reads answers from in and writes questions and hints to out.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
}

var _ Prompter = (*Terminal)(nil)

// NewTerminal returns a Terminal, typically over os.Stdin and os.Stdout.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

// Scripted replays answers in order, one per question asked. Questions are still
// written to out so transcripts can be asserted on.
func Scripted(out io.Writer, answers ...string) *Terminal {
	var b strings.Builder
	for _, a := range answers {
		b.WriteString(a)
		b.WriteByte('\n')
	}
	return NewTerminal(strings.NewReader(b.String()), out)
}

func (t *Terminal) ask(question string) (string, error) {
	fmt.Fprint(t.out, question)
	line, err := t.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(t.out)
			return "", ErrNoInput
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (t *Terminal) YesNo(question string) (bool, error) {
	for {
		a, err := t.ask(question + " (y/n): ")
		if err != nil {
			return false, err
		}
		switch strings.ToLower(a) {
		case "y":
			return true, nil
		case "n":
			return false, nil
		}
		fmt.Fprintln(t.out, "Invalid input. Please enter 'y' or 'n'.")
	}
}

func (t *Terminal) Int(question string, min int) (int, error) {
	for {
		a, err := t.ask(question + ": ")
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(a)
		switch {
		case err != nil:
			fmt.Fprintln(t.out, "Invalid input. Please enter a whole number.")
		case n < min:
			fmt.Fprintf(t.out, "Please enter a number greater than or equal to %d.\n", min)
		default:
			return n, nil
		}
	}
}

// Decimal parses with decimal.NewFromString, which has no NaN or infinity.
func (t *Terminal) Decimal(question string) (decimal.Decimal, error) {
	for {
		a, err := t.ask(question + ": ")
		if err != nil {
			return decimal.Zero, err
		}
		d, err := decimal.NewFromString(a)
		switch {
		case err != nil:
			fmt.Fprintln(t.out, "Invalid amount. Please enter a number (e.g., 10.50).")
		case !d.IsPositive():
			fmt.Fprintln(t.out, "Amount must be positive.")
		default:
			return d, nil
		}
	}
}

func (t *Terminal) String(question, def string) (string, error) {
	a, err := t.ask(question + ": ")
	if err != nil {
		return "", err
	}
	if a == "" {
		return def, nil
	}
	return a, nil
}

func (t *Terminal) Required(question string) (string, error) {
	for {
		a, err := t.ask(question + ": ")
		if err != nil {
			return "", err
		}
		if a != "" {
			return a, nil
		}
		fmt.Fprintln(t.out, "A value is required.")
	}
}

func (t *Terminal) Choose(question string, n int) (int, bool, error) {
	for {
		a, err := t.ask(question + " (or 'q' to quit): ")
		if err != nil {
			return 0, false, err
		}
		if strings.EqualFold(a, "q") {
			return 0, false, nil
		}
		i, err := strconv.Atoi(a)
		switch {
		case err != nil:
			fmt.Fprintln(t.out, "Please enter a valid number or 'q' to quit.")
		case i < 1 || i > n:
			fmt.Fprintln(t.out, "Invalid selection. Please try again.")
		default:
			return i - 1, true, nil
		}
	}
}

func (t *Terminal) Confirm(question string) (bool, error) {
	a, err := t.ask(question + " (yes/no): ")
	if err != nil {
		return false, err
	}
	return strings.ToLower(a) == "yes", nil
}
