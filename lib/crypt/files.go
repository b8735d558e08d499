// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package crypt

import (
	"crypto/aes"
	"os"
	"strings"

	"github.com/syncthing/crossdrop/lib/osutil"
)

// Suffix marks encrypted files.
const Suffix = ".crypt"

// EncryptedName returns the name an encrypted copy of name is stored under.
func EncryptedName(name string) string {
	return name + Suffix
}

// PlainName strips the encryption suffix from name. The second return is
// false when name does not carry the suffix.
func PlainName(name string) (string, bool) {
	if !strings.HasSuffix(name, Suffix) || len(name) == len(Suffix) {
		return name, false
	}
	return strings.TrimSuffix(name, Suffix), true
}

// EncryptedSize returns the size of the encrypted form of a plaintext of
// size bytes. Padding always adds between one and a full block.
func EncryptedSize(size int64) int64 {
	return HeaderSize + (size/aes.BlockSize+1)*aes.BlockSize
}

// EncryptFile encrypts the file at src into a new file at dst. The output is
// removed if anything fails.
func EncryptFile(password, src, dst string) (Header, error) {
	in, err := os.Open(src)
	if err != nil {
		return Header{}, &IOError{Op: "open", Err: err}
	}
	defer in.Close()

	var hdr Header
	err = writeTo(dst, func(out *os.File) error {
		var err error
		hdr, err = Encrypt(password, out, in)
		return err
	})
	return hdr, err
}

// DecryptFile decrypts the file at src into a new file at dst, returning the
// plaintext size. The output is removed if anything fails, including a wrong
// password.
func DecryptFile(password, src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, &IOError{Op: "open", Err: err}
	}
	defer in.Close()

	var n int64
	err = writeTo(dst, func(out *os.File) error {
		var err error
		n, err = Decrypt(password, out, in)
		return err
	})
	return n, err
}

func writeTo(dst string, fn func(*os.File) error) error {
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return &IOError{Op: "create", Err: err}
	}
	if err := fn(out); err != nil {
		out.Close()
		if rerr := osutil.Remove(dst); rerr != nil {
			l.Warnln("Removing partial output:", rerr)
		}
		return err
	}
	if err := out.Close(); err != nil {
		osutil.Remove(dst)
		return &IOError{Op: "close", Err: err}
	}
	return nil
}
