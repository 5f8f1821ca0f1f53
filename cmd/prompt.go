package cmd

import (
	"github.com/charmbracelet/huh"
)

// runWithHelp wraps huh fields in a form with the key hints visible.
func runWithHelp(fields ...huh.Field) error {
	return huh.NewForm(huh.NewGroup(fields...)).WithShowHelp(true).Run()
}

// promptString asks for one line of text. A non-empty defaultVal is shown as
// the placeholder and returned when the answer is left empty.
func promptString(title, description, defaultVal string) (string, error) {
	var value string
	inp := huh.NewInput().
		Title(title).
		Value(&value)

	if description != "" {
		inp = inp.Description(description)
	}
	if defaultVal != "" {
		inp = inp.Placeholder(defaultVal)
	}

	if err := runWithHelp(inp); err != nil {
		return "", err
	}
	if value == "" {
		return defaultVal, nil
	}
	return value, nil
}

// promptPassword asks for a secret without echoing it.
func promptPassword(title, description string) (string, error) {
	var value string
	inp := huh.NewInput().
		Title(title).
		EchoMode(huh.EchoModePassword).
		Value(&value)

	if description != "" {
		inp = inp.Description(description)
	}

	if err := runWithHelp(inp); err != nil {
		return "", err
	}
	return value, nil
}

// promptMultiSelect shows a multi-select list and returns the chosen values.
func promptMultiSelect[T comparable](title, description string, options []SelectOption[T], preselected []T) ([]T, error) {
	var values []T

	preSet := make(map[T]bool, len(preselected))
	for _, v := range preselected {
		preSet[v] = true
	}

	huhOpts := make([]huh.Option[T], len(options))
	for i, opt := range options {
		o := huh.NewOption(opt.Label, opt.Value)
		if preSet[opt.Value] {
			o = o.Selected(true)
		}
		huhOpts[i] = o
	}

	ms := huh.NewMultiSelect[T]().
		Title(title).
		Options(huhOpts...).
		Value(&values)

	if description != "" {
		ms = ms.Description(description)
	}

	if err := runWithHelp(ms); err != nil {
		return nil, err
	}
	return values, nil
}

// promptConfirm asks a yes/no question. Returns true for yes.
func promptConfirm(title string, defaultYes bool) (bool, error) {
	value := defaultYes

	c := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&value)

	if err := runWithHelp(c); err != nil {
		return false, err
	}
	return value, nil
}

// SelectOption is one choice in a select prompt.
type SelectOption[T any] struct {
	Label string
	Value T
}
