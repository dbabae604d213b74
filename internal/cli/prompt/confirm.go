// Package prompt wraps promptui for the interactive surfaces bamsync
// has: the apply confirmation, the typed acknowledgement before
// delete-bearing runs, and the init wizard. Every helper maps Ctrl+C
// to ErrAborted so commands can exit quietly.
package prompt

import (
	"fmt"

	"github.com/manifoldco/promptui"
)

// Confirm asks a yes/no question. "n" and an aborted prompt both
// report false; only Ctrl+C is an error.
func Confirm(label string, defaultYes bool) (bool, error) {
	hint := "y/N"
	if defaultYes {
		hint = "Y/n"
	}
	p := promptui.Prompt{
		Label:     fmt.Sprintf("%s [%s]", label, hint),
		IsConfirm: true,
	}
	answer, err := p.Run()
	switch {
	case err == promptui.ErrInterrupt:
		return false, ErrAborted
	case err == promptui.ErrAbort:
		return false, nil
	case err != nil && answer == "":
		return defaultYes, nil
	case err != nil:
		return false, err
	}
	return answer == "y" || answer == "Y", nil
}

// ConfirmDanger gates operations that destroy remote state. The
// operator must type the confirmation word, usually the count of
// pending deletes or the session ID being rolled back.
func ConfirmDanger(label, word string) (bool, error) {
	p := promptui.Prompt{
		Label: fmt.Sprintf("%s (type %q to proceed)", label, word),
		Validate: func(input string) error {
			if input != word {
				return fmt.Errorf("type %q to proceed", word)
			}
			return nil
		},
	}
	typed, err := p.Run()
	switch {
	case err == promptui.ErrInterrupt:
		return false, ErrAborted
	case err == promptui.ErrAbort:
		return false, nil
	case err != nil:
		return false, err
	}
	return typed == word, nil
}

// ConfirmWithForce is Confirm behind a --force/--yes flag.
func ConfirmWithForce(label string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	return Confirm(label, false)
}
