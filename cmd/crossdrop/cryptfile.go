// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"errors"
	"fmt"

	"github.com/syncthing/crossdrop/lib/crypt"
	"github.com/syncthing/crossdrop/lib/osutil"
)

type encryptCommand struct {
	Input  string `arg:"" type:"existingfile" help:"File to encrypt"`
	Output string `arg:"" optional:"" help:"Output file (default: input with the .crypt suffix)"`
}

func (c *encryptCommand) Run(a *app) error {
	out := c.Output
	if out == "" {
		var err error
		if out, err = osutil.UniqueName(crypt.EncryptedName(c.Input)); err != nil {
			return err
		}
	}

	pw, err := a.newPrompt(true).next()
	if err != nil {
		return err
	}
	hdr, err := crypt.EncryptFile(pw, c.Input, out)
	if err != nil {
		return err
	}
	l.Debugf("encrypted %s with salt %x iv %x", c.Input, hdr.Salt(), hdr.IV())
	fmt.Println(out)
	return nil
}

type decryptCommand struct {
	Input  string `arg:"" type:"existingfile" help:"File to decrypt"`
	Output string `arg:"" optional:"" help:"Output file (default: input without the .crypt suffix)"`
}

func (c *decryptCommand) Run(a *app) error {
	out := c.Output
	if out == "" {
		plain, ok := crypt.PlainName(c.Input)
		if !ok {
			return fmt.Errorf("%s: no %s suffix, name the output file", c.Input, crypt.Suffix)
		}
		var err error
		if out, err = osutil.UniqueName(plain); err != nil {
			return err
		}
	}

	pw, err := a.newPrompt(false).next()
	if err != nil {
		return err
	}
	n, err := crypt.DecryptFile(pw, c.Input, out)
	if errors.Is(err, crypt.ErrDecryption) {
		return fmt.Errorf("%s: %w", c.Input, err)
	}
	if err != nil {
		return err
	}
	l.Debugf("decrypted %d bytes to %s", n, out)
	fmt.Println(out)
	return nil
}
