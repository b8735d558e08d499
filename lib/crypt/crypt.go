// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package crypt implements the password based encryption of transferred
// files. An encrypted stream is a 16 byte salt and a 16 byte IV followed by
// the AES-256-CBC ciphertext of the PKCS#7 padded plaintext, keyed with
// PBKDF2-HMAC-SHA256 of the password and salt.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltSize   = 16
	IVSize     = aes.BlockSize
	HeaderSize = SaltSize + IVSize
	KeySize    = 32
	Iterations = 100000

	// ChunkSize is the amount of data read and transformed at a time. It
	// must be a multiple of the block size.
	ChunkSize = 64 << 10
)

// ErrDecryption is returned when the ciphertext does not decrypt to validly
// padded plaintext. A wrong password and corrupted or truncated data are
// indistinguishable.
var ErrDecryption = errors.New("wrong password or corrupted file")

// An IOError is a failure to read the source or write the destination. It
// says nothing about the password.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// A Header is the salt and IV preceding every encrypted stream.
type Header [HeaderSize]byte

func (h Header) Salt() []byte {
	return h[:SaltSize]
}

func (h Header) IV() []byte {
	return h[SaltSize:]
}

// DeriveKey returns the AES-256 key for the password and salt.
func DeriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New)
}

// NewHeader returns a header with a fresh random salt and IV.
func NewHeader() (Header, error) {
	var hdr Header
	if _, err := io.ReadFull(rand.Reader, hdr[:]); err != nil {
		return Header{}, fmt.Errorf("generating header: %w", err)
	}
	return hdr, nil
}

// Encrypt writes the header and the encrypted contents of src to dst, using
// a fresh salt and IV. It returns the header that was used.
func Encrypt(password string, dst io.Writer, src io.Reader) (Header, error) {
	hdr, err := NewHeader()
	if err != nil {
		return Header{}, err
	}
	n, err := encryptStream(DeriveKey(password, hdr.Salt()), hdr, dst, src)
	metricOperations.WithLabelValues(metricOpEncrypt, resultLabel(err)).Inc()
	metricPlaintextBytes.WithLabelValues(metricOpEncrypt).Add(float64(n))
	if err != nil {
		return Header{}, err
	}
	return hdr, nil
}

// Decrypt reads a header and ciphertext from src and writes the plaintext to
// dst, returning the number of plaintext bytes written. The final block is
// held back until the padding has been validated, so no padding bytes ever
// reach dst. When ErrDecryption is returned some plaintext of earlier blocks
// may already have been written; the caller is expected to discard it.
func Decrypt(password string, dst io.Writer, src io.Reader) (int64, error) {
	var hdr Header
	if _, err := io.ReadFull(src, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			l.Debugln("short header:", err)
			err = ErrDecryption
		} else {
			err = &IOError{Op: "read", Err: err}
		}
		metricOperations.WithLabelValues(metricOpDecrypt, resultLabel(err)).Inc()
		return 0, err
	}

	n, err := decryptStream(DeriveKey(password, hdr.Salt()), hdr.IV(), dst, src)
	metricOperations.WithLabelValues(metricOpDecrypt, resultLabel(err)).Inc()
	metricPlaintextBytes.WithLabelValues(metricOpDecrypt).Add(float64(n))
	return n, err
}

func encryptStream(key []byte, hdr Header, dst io.Writer, src io.Reader) (int64, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return 0, err
	}
	mode := cipher.NewCBCEncrypter(block, hdr.IV())

	if err := writeFull(dst, hdr[:]); err != nil {
		return 0, err
	}

	var total int64
	buf := make([]byte, ChunkSize+aes.BlockSize)
	for {
		n, err := io.ReadFull(src, buf[:ChunkSize])
		total += int64(n)
		switch {
		case err == nil:
			mode.CryptBlocks(buf[:n], buf[:n])
			if err := writeFull(dst, buf[:n]); err != nil {
				return total, err
			}

		case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
			padded := pad(buf[:n])
			mode.CryptBlocks(padded, padded)
			return total, writeFull(dst, padded)

		default:
			return total, &IOError{Op: "read", Err: err}
		}
	}
}

func decryptStream(key, iv []byte, dst io.Writer, src io.Reader) (int64, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return 0, err
	}
	mode := cipher.NewCBCDecrypter(block, iv)

	var total int64
	buf := make([]byte, ChunkSize+aes.BlockSize)
	held := 0
	for {
		n, err := io.ReadFull(src, buf[held:held+ChunkSize])
		held += n
		switch {
		case err == nil:
			// Everything but the last block can be released now; the last
			// block carries the padding.
			ready := held - aes.BlockSize
			mode.CryptBlocks(buf[:ready], buf[:ready])
			if err := writeFull(dst, buf[:ready]); err != nil {
				return total, err
			}
			total += int64(ready)
			held = copy(buf, buf[ready:held])

		case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
			if held == 0 || held%aes.BlockSize != 0 {
				l.Debugf("ciphertext tail of %d bytes is not block aligned", held)
				return total, ErrDecryption
			}
			mode.CryptBlocks(buf[:held], buf[:held])
			plain, ok := unpad(buf[:held])
			if !ok {
				return total, ErrDecryption
			}
			if err := writeFull(dst, plain); err != nil {
				return total, err
			}
			return total + int64(len(plain)), nil

		default:
			return total, &IOError{Op: "read", Err: err}
		}
	}
}

// pad appends PKCS#7 padding to bs, which must have spare capacity of at
// least one block.
func pad(bs []byte) []byte {
	n := aes.BlockSize - len(bs)%aes.BlockSize
	for i := 0; i < n; i++ {
		bs = append(bs, byte(n))
	}
	return bs
}

func unpad(bs []byte) ([]byte, bool) {
	if len(bs) == 0 || len(bs)%aes.BlockSize != 0 {
		return nil, false
	}
	n := int(bs[len(bs)-1])
	if n == 0 || n > aes.BlockSize {
		return nil, false
	}
	for _, b := range bs[len(bs)-n:] {
		if int(b) != n {
			return nil, false
		}
	}
	return bs[:len(bs)-n], true
}

func writeFull(w io.Writer, bs []byte) error {
	n, err := w.Write(bs)
	if err == nil && n < len(bs) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return &IOError{Op: "write", Err: err}
	}
	return nil
}
