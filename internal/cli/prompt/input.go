package prompt

import (
	"errors"

	"github.com/manifoldco/promptui"
)

// ErrAborted reports that the operator cancelled a prompt.
var ErrAborted = errors.New("aborted")

// IsAborted reports whether the error came from a cancelled prompt,
// before or after wrapping.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted) ||
		errors.Is(err, promptui.ErrInterrupt) ||
		errors.Is(err, promptui.ErrAbort)
}

// wrapError folds promptui's interrupt and abort sentinels into
// ErrAborted.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if IsAborted(err) {
		return ErrAborted
	}
	return err
}

// InputRequired asks for a value that may not be empty, such as the
// server URL in the init wizard.
func InputRequired(label string) (string, error) {
	p := promptui.Prompt{
		Label: label,
		Validate: func(input string) error {
			if input == "" {
				return promptui.ErrAbort
			}
			return nil
		},
	}
	value, err := p.Run()
	return value, wrapError(err)
}

// InputWithValidation asks for a value checked by the caller's
// validator, re-prompting until it passes.
func InputWithValidation(label string, validate func(string) error) (string, error) {
	p := promptui.Prompt{Label: label, Validate: validate}
	value, err := p.Run()
	return value, wrapError(err)
}

// Password asks for a masked secret.
func Password(label string) (string, error) {
	p := promptui.Prompt{Label: label, Mask: '*'}
	value, err := p.Run()
	return value, wrapError(err)
}
