// Package auth provides credential checks for inbound connect requests.
//
// It intentionally avoids policy decisions and storage concerns.
package auth

import (
	"errors"
	"fmt"
	"sort"

	"golang.org/x/crypto/bcrypt"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Authenticator checks a user and password pair.
type Authenticator interface {
	Authenticate(user, password string) error
}

// Anyone accepts every credential pair.
type Anyone struct{}

func (Anyone) Authenticate(string, string) error {
	return nil
}

// Users maps user names to bcrypt hashes of their passwords.
type Users map[string]string

func (u Users) Authenticate(user, password string) error {
	want, ok := u[user]
	if !ok || want == "" {
		return ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(want), []byte(password)); err != nil {
		return ErrUnauthorized
	}
	return nil
}

// Validate reports the first user whose entry is not a bcrypt hash.
func (u Users) Validate() error {
	names := make([]string, 0, len(u))
	for name := range u {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := bcrypt.Cost([]byte(u[name])); err != nil {
			return fmt.Errorf("auth: user %q: %w", name, err)
		}
	}
	return nil
}

// Hash renders password the way Users stores it.
func Hash(password string) (string, error) {
	return HashCost(password, bcrypt.DefaultCost)
}

// HashCost is Hash with an explicit bcrypt cost.
func HashCost(password string, cost int) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(out), nil
}

// Func adapts a function into an Authenticator.
type Func func(user, password string) error

func (f Func) Authenticate(user, password string) error {
	return f(user, password)
}
