package secret

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source resolves a secret from an environment variable or a hidden terminal
// prompt, once. Later calls return the cached result.
type Source struct {
	envVar     string
	label      string
	allowEmpty bool

	once  sync.Once
	value string
	err   error
}

// NewSource builds a Source for the named secret. allowEmpty accepts a blank
// value, which the owner keystore written by config.Load uses.
func NewSource(envVar, label string, allowEmpty bool) *Source {
	return &Source{envVar: strings.TrimSpace(envVar), label: label, allowEmpty: allowEmpty}
}

func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		if s.envVar != "" {
			if value, ok := os.LookupEnv(s.envVar); ok {
				if strings.TrimSpace(value) == "" && !s.allowEmpty {
					s.err = fmt.Errorf("%s is set but empty", s.envVar)
					return
				}
				s.value = value
				return
			}
		}

		if !term.IsTerminal(int(os.Stdin.Fd())) {
			if s.allowEmpty {
				return
			}
			s.err = fmt.Errorf("%s required; set %s or run interactively", s.label, s.envVar)
			return
		}

		fmt.Fprintf(os.Stderr, "Enter %s: ", s.label)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			s.err = fmt.Errorf("read %s: %w", s.label, err)
			return
		}
		value := string(raw)
		if strings.TrimSpace(value) == "" && !s.allowEmpty {
			s.err = fmt.Errorf("%s cannot be empty", s.label)
			return
		}
		s.value = value
	})
	return s.value, s.err
}
