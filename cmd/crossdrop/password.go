// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

const passwordEnv = "CROSSDROP_PASSWORD"

var (
	errPasswordMismatch = errors.New("passwords do not match")
	errEmptyPassword    = errors.New("empty password")
	errEnvPasswordUsed  = fmt.Errorf("password from %s was not accepted", passwordEnv)
)

// A passwordPrompt hands out passwords, from the environment if set and
// otherwise from the terminal. The environment password is handed out only
// once.
type passwordPrompt struct {
	confirm bool
	envUsed bool
	// read is replaced in tests.
	read func(prompt string) (string, error)
}

func newPasswordPrompt(confirm bool) *passwordPrompt {
	return &passwordPrompt{
		confirm: confirm,
		read:    readTerminal,
	}
}

func (p *passwordPrompt) next() (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		if p.envUsed {
			return "", errEnvPasswordUsed
		}
		p.envUsed = true
		return pw, nil
	}

	pw, err := p.read("Password: ")
	if err != nil {
		return "", err
	}
	if pw == "" {
		return "", errEmptyPassword
	}
	if p.confirm {
		again, err := p.read("Confirm password: ")
		if err != nil {
			return "", err
		}
		if again != pw {
			return "", errPasswordMismatch
		}
	}
	return pw, nil
}

// readTerminal reads a line without echo, from standard input when that is
// a terminal and from the controlling terminal otherwise.
func readTerminal(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		tty, err := os.Open("/dev/tty")
		if err != nil {
			return "", fmt.Errorf("no terminal to read the password from; set %s", passwordEnv)
		}
		defer tty.Close()
		fd = int(tty.Fd())
	}

	fmt.Fprint(os.Stderr, prompt)
	bs, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if errors.Is(err, io.EOF) {
		return "", errEmptyPassword
	}
	return string(bs), err
}
