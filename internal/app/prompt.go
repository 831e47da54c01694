// SPDX-License-Identifier: Apache-2.0

package app

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
)

// ErrNoAnswer is returned when a confirmation is needed but the input is closed
var ErrNoAnswer = errors.New("confirmation required, rerun with --yes")

// Confirm asks a yes/no question on Err and reads the answer from In.
// assumeYes answers for the user.
func (a *App) Confirm(question string, assumeYes bool) (bool, error) {
	if assumeYes {
		return true, nil
	}

	fmt.Fprintf(a.Err, "%s [y/N] ", question)
	line, err := bufio.NewReader(a.In).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(a.Err)
		return false, ErrNoAnswer
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
