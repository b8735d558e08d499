// Copyright (C) 2023 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package crypt

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crossdrop",
		Subsystem: "crypt",
		Name:      "operations_total",
		Help:      "Total number of encrypt and decrypt operations, by result",
	}, []string{"op", "result"})
	metricPlaintextBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crossdrop",
		Subsystem: "crypt",
		Name:      "plaintext_bytes_total",
		Help:      "Total amount of plaintext encrypted or recovered",
	}, []string{"op"})
)

const (
	metricOpEncrypt = "encrypt"
	metricOpDecrypt = "decrypt"

	metricResultSuccess = "success"
	metricResultCrypto  = "crypto_error"
	metricResultIO      = "io_error"
)

func init() {
	for _, op := range []string{metricOpEncrypt, metricOpDecrypt} {
		metricPlaintextBytes.WithLabelValues(op)
		for _, res := range []string{metricResultSuccess, metricResultCrypto, metricResultIO} {
			metricOperations.WithLabelValues(op, res)
		}
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return metricResultSuccess
	case errors.Is(err, ErrDecryption):
		return metricResultCrypto
	default:
		return metricResultIO
	}
}
