// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"testing"
)

func randomBytes(t testing.TB, n int) []byte {
	t.Helper()
	bs := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, bs); err != nil {
		t.Fatal(err)
	}
	return bs
}

func TestRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 7, 15, 16, 17, 1000, ChunkSize - 1, ChunkSize, ChunkSize + 1, 3*ChunkSize + 5}

	for _, size := range sizes {
		t.Run(fmt.Sprint(size), func(t *testing.T) {
			plain := randomBytes(t, size)

			var enc bytes.Buffer
			if _, err := Encrypt("correct horse", &enc, bytes.NewReader(plain)); err != nil {
				t.Fatal(err)
			}
			if int64(enc.Len()) != EncryptedSize(int64(size)) {
				t.Errorf("ciphertext is %d bytes, expected %d", enc.Len(), EncryptedSize(int64(size)))
			}

			var dec bytes.Buffer
			n, err := Decrypt("correct horse", &dec, &enc)
			if err != nil {
				t.Fatal(err)
			}
			if n != int64(size) {
				t.Errorf("Decrypt reported %d bytes, expected %d", n, size)
			}
			if !bytes.Equal(dec.Bytes(), plain) {
				t.Error("plaintext mismatch after round trip")
			}
		})
	}
}

func TestHeader(t *testing.T) {
	plain := []byte("HELLOWORLD")

	var enc bytes.Buffer
	hdr, err := Encrypt("abcdefg", &enc, bytes.NewReader(plain))
	if err != nil {
		t.Fatal(err)
	}

	out := enc.Bytes()
	if len(out) != HeaderSize+aes.BlockSize {
		t.Fatalf("expected %d bytes of output, got %d", HeaderSize+aes.BlockSize, len(out))
	}
	if !bytes.Equal(out[:SaltSize], hdr.Salt()) {
		t.Error("first 16 bytes are not the salt")
	}
	if !bytes.Equal(out[SaltSize:HeaderSize], hdr.IV()) {
		t.Error("second 16 bytes are not the IV")
	}

	// Re-deriving the key from the stored salt recovers the plaintext.
	var dec bytes.Buffer
	key := DeriveKey("abcdefg", out[:SaltSize])
	if _, err := decryptStream(key, out[SaltSize:HeaderSize], &dec, bytes.NewReader(out[HeaderSize:])); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec.Bytes(), plain) {
		t.Errorf("got %q, expected %q", dec.Bytes(), plain)
	}
}

func TestFreshHeaders(t *testing.T) {
	var a, b bytes.Buffer
	ha, err := Encrypt("pw", &a, bytes.NewReader([]byte("same")))
	if err != nil {
		t.Fatal(err)
	}
	hb, err := Encrypt("pw", &b, bytes.NewReader([]byte("same")))
	if err != nil {
		t.Fatal(err)
	}
	if ha == hb {
		t.Error("two encryptions shared salt and IV")
	}
	if bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("two encryptions produced identical output")
	}
}

func TestDeriveKey(t *testing.T) {
	salt := []byte("0123456789abcdef")

	k1 := DeriveKey("password", salt)
	k2 := DeriveKey("password", salt)
	if len(k1) != KeySize {
		t.Fatalf("key is %d bytes, expected %d", len(k1), KeySize)
	}
	if !bytes.Equal(k1, k2) {
		t.Error("key derivation is not deterministic")
	}
	if bytes.Equal(k1, DeriveKey("Password", salt)) {
		t.Error("different passwords gave the same key")
	}
	if bytes.Equal(k1, DeriveKey("password", []byte("fedcba9876543210"))) {
		t.Error("different salts gave the same key")
	}
}

func TestWrongPassword(t *testing.T) {
	for _, content := range []string{"abcdefg", "HELLOWORLD"} {
		var enc bytes.Buffer
		if _, err := Encrypt("abcdefg", &enc, bytes.NewReader([]byte(content))); err != nil {
			t.Fatal(err)
		}
		if enc.Len() != 32+16 {
			t.Errorf("%q: expected 48 bytes of output, got %d", content, enc.Len())
		}

		ciphertext := enc.Bytes()

		var dec bytes.Buffer
		if _, err := Decrypt("abcdefg", &dec, bytes.NewReader(ciphertext)); err != nil {
			t.Fatal(err)
		}
		if dec.String() != content {
			t.Errorf("got %q, expected %q", dec.String(), content)
		}

		// A wrong password fails padding validation about 255 times in
		// 256; when it does pass, the output is garbage.
		dec.Reset()
		_, err := Decrypt("wrongpw", &dec, bytes.NewReader(ciphertext))
		switch {
		case errors.Is(err, ErrDecryption):
		case err == nil:
			if dec.String() == content {
				t.Errorf("%q: wrong password recovered the plaintext", content)
			}
			t.Logf("%q: wrong password passed padding validation", content)
		default:
			t.Errorf("%q: unexpected error %v", content, err)
		}
	}
}

func TestWrongKeyMostlyFails(t *testing.T) {
	plain := []byte("attack at dawn")
	key := randomBytes(t, KeySize)
	var hdr Header
	copy(hdr[:], randomBytes(t, HeaderSize))

	var enc bytes.Buffer
	if _, err := encryptStream(key, hdr, &enc, bytes.NewReader(plain)); err != nil {
		t.Fatal(err)
	}
	body := enc.Bytes()[HeaderSize:]

	const trials = 1000
	failures := 0
	for i := 0; i < trials; i++ {
		wrong := randomBytes(t, KeySize)
		_, err := decryptStream(wrong, hdr.IV(), io.Discard, bytes.NewReader(body))
		if errors.Is(err, ErrDecryption) {
			failures++
		} else if err != nil {
			t.Fatal(err)
		}
	}

	// The expected failure rate is about 99.6%.
	if failures < trials*95/100 {
		t.Errorf("only %d of %d wrong keys were rejected", failures, trials)
	}
}

func TestWrongKeyCanPassPadding(t *testing.T) {
	// Padding validation is the only integrity check, so some wrong key
	// always exists that yields validly padded garbage.
	plain := []byte("short")
	key := randomBytes(t, KeySize)
	var hdr Header
	copy(hdr[:], randomBytes(t, HeaderSize))

	var enc bytes.Buffer
	if _, err := encryptStream(key, hdr, &enc, bytes.NewReader(plain)); err != nil {
		t.Fatal(err)
	}
	body := enc.Bytes()[HeaderSize:]

	for i := 0; i < 100000; i++ {
		var dec bytes.Buffer
		_, err := decryptStream(randomBytes(t, KeySize), hdr.IV(), &dec, bytes.NewReader(body))
		if err == nil {
			if bytes.Equal(dec.Bytes(), plain) {
				t.Fatal("a random key recovered the plaintext")
			}
			t.Logf("wrong key passed padding after %d trials", i+1)
			return
		}
	}
	t.Error("no wrong key passed padding validation in 100000 trials")
}

func TestCorruptedInput(t *testing.T) {
	var enc bytes.Buffer
	if _, err := Encrypt("pw", &enc, bytes.NewReader(randomBytes(t, 100))); err != nil {
		t.Fatal(err)
	}
	full := enc.Bytes()

	cases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", full[:HeaderSize-1]},
		{"header only", full[:HeaderSize]},
		{"truncated body", full[:len(full)-1]},
		{"unaligned body", append(append([]byte{}, full...), 0x00)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decrypt("pw", io.Discard, bytes.NewReader(tc.data))
			if !errors.Is(err, ErrDecryption) {
				t.Errorf("expected ErrDecryption, got %v", err)
			}
			var ioErr *IOError
			if errors.As(err, &ioErr) {
				t.Error("corruption reported as an I/O error")
			}
		})
	}
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }

func TestIOErrors(t *testing.T) {
	boom := errors.New("boom")

	_, err := Encrypt("pw", io.Discard, failingReader{boom})
	var ioErr *IOError
	if !errors.As(err, &ioErr) || ioErr.Op != "read" || !errors.Is(err, boom) {
		t.Errorf("encrypt read failure: unexpected error %v", err)
	}

	_, err = Encrypt("pw", failingWriter{boom}, bytes.NewReader([]byte("data")))
	if !errors.As(err, &ioErr) || ioErr.Op != "write" || !errors.Is(err, boom) {
		t.Errorf("encrypt write failure: unexpected error %v", err)
	}

	_, err = Decrypt("pw", io.Discard, failingReader{boom})
	if !errors.As(err, &ioErr) || !errors.Is(err, boom) {
		t.Errorf("decrypt read failure: unexpected error %v", err)
	}

	var enc bytes.Buffer
	if _, err := Encrypt("pw", &enc, bytes.NewReader([]byte("data"))); err != nil {
		t.Fatal(err)
	}
	_, err = Decrypt("pw", failingWriter{boom}, &enc)
	if !errors.As(err, &ioErr) || ioErr.Op != "write" {
		t.Errorf("decrypt write failure: unexpected error %v", err)
	}
	if errors.Is(err, ErrDecryption) {
		t.Error("write failure reported as a decryption failure")
	}
}

func TestPadding(t *testing.T) {
	for n := 0; n <= 2*aes.BlockSize; n++ {
		bs := make([]byte, n, n+aes.BlockSize)
		padded := pad(bs)
		if len(padded)%aes.BlockSize != 0 || len(padded) <= n {
			t.Fatalf("bad padded length %d for %d", len(padded), n)
		}
		unpadded, ok := unpad(padded)
		if !ok || len(unpadded) != n {
			t.Fatalf("unpad failed for %d", n)
		}
	}

	bad := [][]byte{
		nil,
		make([]byte, aes.BlockSize),
		bytes.Repeat([]byte{17}, aes.BlockSize),
		append(bytes.Repeat([]byte{1}, 14), 3, 2),
		append(bytes.Repeat([]byte{0}, 15), 1)[:15],
	}
	for i, bs := range bad {
		if _, ok := unpad(bs); ok {
			t.Errorf("case %d: invalid padding accepted", i)
		}
	}
}
