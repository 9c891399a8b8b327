// Package interaction provides interactive terminal prompts using the huh
// library, behind an interface so commands and resolvers can be tested with
// scripted answers.
package interaction

import (
	"fmt"

	"github.com/charmbracelet/huh"
)

// Prompter asks the operator for values the configuration could not supply.
type Prompter interface {
	Input(title string) (string, error)
	Secret(title string) (string, error)
	Confirm(title string, value bool) (bool, error)
}

var runInput = func(title string, secret bool, input *string) error {
	field := huh.NewInput().
		Title(title).
		Value(input)
	if secret {
		field = field.EchoMode(huh.EchoModePassword)
	}
	return field.Run()
}

var runConfirm = func(title string, value *bool) error {
	return huh.NewConfirm().
		Title(title).
		Value(value).
		Run()
}

// HuhPrompter implements Prompter on top of huh form fields.
type HuhPrompter struct{}

func (p HuhPrompter) Input(title string) (string, error) {
	var input string
	if err := runInput(title, false, &input); err != nil {
		return "", fmt.Errorf("prompt input: %w", err)
	}
	return input, nil
}

func (p HuhPrompter) Secret(title string) (string, error) {
	var input string
	if err := runInput(title, true, &input); err != nil {
		return "", fmt.Errorf("prompt secret: %w", err)
	}
	return input, nil
}

func (p HuhPrompter) Confirm(title string, value bool) (bool, error) {
	if err := runConfirm(title, &value); err != nil {
		return false, fmt.Errorf("prompt confirm: %w", err)
	}
	return value, nil
}
