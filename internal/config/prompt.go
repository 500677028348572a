package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// IsInteractive reports whether stdin is a terminal.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// ReadSecret prints prompt to out and reads a line from stdin without echo
// when stdin is a terminal. Piped input is read as a plain line.
func ReadSecret(out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	return ReadLine(bufio.NewReader(os.Stdin))
}

// ReadLine returns the next trimmed line; a final line without newline is accepted.
func ReadLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ValidateOpenAIKey rejects keys that are obviously not OpenAI secret keys.
func ValidateOpenAIKey(key string) error {
	if key == "" {
		return fmt.Errorf("OpenAI API key is required")
	}
	if !strings.HasPrefix(key, "sk-") {
		return fmt.Errorf("OpenAI API key should start with 'sk-'")
	}
	return nil
}
