package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Test seams for the terminal and standard input.
var (
	readPassword           = term.ReadPassword
	isTerminal             = term.IsTerminal
	stdinFd                = func() int { return int(os.Stdin.Fd()) }
	linkInput    io.Reader = os.Stdin
)

var errNoLink = errors.New("no pairing link entered")

var errNoPassphrase = errors.New("store passphrase required: use -p or run on a terminal")

// getPassphrase returns the configured store passphrase, or prompts for it
// on w and reads it from the terminal without echo. The caller should wipe
// the result when done.
func getPassphrase(configured string, w io.Writer) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}
	fd := stdinFd()
	if !isTerminal(fd) {
		return nil, errNoPassphrase
	}

	if _, err := fmt.Fprint(w, "Enter store passphrase: "); err != nil {
		return nil, err
	}
	pw, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	if len(pw) == 0 {
		return nil, errNoPassphrase
	}
	return pw, nil
}

// readLink reads one line holding the pairing link from r. It gives up when
// ctx is done; the reading goroutine then ends with the input.
func readLink(ctx context.Context, r io.Reader) (string, error) {
	type line struct {
		text string
		err  error
	}
	got := make(chan line, 1)
	go func() {
		sc := bufio.NewScanner(r)
		if sc.Scan() {
			got <- line{text: strings.TrimSpace(sc.Text())}
			return
		}
		err := sc.Err()
		if err == nil {
			err = errNoLink
		}
		got <- line{err: err}
	}()

	select {
	case l := <-got:
		if l.err == nil && l.text == "" {
			return "", errNoLink
		}
		return l.text, l.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
