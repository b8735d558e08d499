// Copyright (C) 2023 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package receive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crossdrop",
		Subsystem: "receive",
		Name:      "attempts_total",
		Help:      "Total number of password attempts, by resulting state",
	}, []string{"state"})
	metricFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crossdrop",
		Subsystem: "receive",
		Name:      "failures_total",
		Help:      "Total number of failed entries, by kind",
	}, []string{"kind"})
	metricEntriesDecrypted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crossdrop",
		Subsystem: "receive",
		Name:      "entries_decrypted_total",
		Help:      "Total number of entries decrypted successfully",
	})
	metricBytesDecrypted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crossdrop",
		Subsystem: "receive",
		Name:      "bytes_decrypted_total",
		Help:      "Total amount of plaintext recovered",
	})
)

func init() {
	for _, s := range []State{StateIdle, StateRetry, StateSuccess, StateLockout} {
		metricAttempts.WithLabelValues(s.String())
	}
	for _, k := range []FailureKind{FailureCrypto, FailureIO} {
		metricFailures.WithLabelValues(k.String())
	}
}
