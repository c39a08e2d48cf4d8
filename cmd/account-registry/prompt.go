package main

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

const minPasswordLen = 8

// keystorePassword reads the keystore password from envName, falling back to
// an interactive prompt when stdin is a terminal.
func keystorePassword(envName string) ([]byte, error) {
	if envName != "" {
		if pw := os.Getenv(envName); pw != "" {
			return []byte(pw), nil
		}
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, fmt.Errorf("keystore password not set: export %s", envName)
	}
	return promptPassword("Keystore password: ")
}

func promptPassword(prompt string) ([]byte, error) {
	_, _ = fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	_, _ = fmt.Fprintln(os.Stderr)
	if err != nil {
		zeroBytes(pw)
		return nil, fmt.Errorf("password input failed: %w", err)
	}
	if len(strings.TrimSpace(string(pw))) < minPasswordLen {
		zeroBytes(pw)
		return nil, fmt.Errorf("password must be at least %d characters long", minPasswordLen)
	}
	return pw, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
