// Copyright (C) 2023 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package send

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricStagedFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crossdrop",
		Subsystem: "send",
		Name:      "staged_files_total",
		Help:      "Total number of files staged for sending, by mode",
	}, []string{"mode"})
	metricStagedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crossdrop",
		Subsystem: "send",
		Name:      "staged_bytes_total",
		Help:      "Total amount of source data staged for sending, by mode",
	}, []string{"mode"})
)

const (
	metricModeEncrypted = "encrypted"
	metricModePlain     = "plain"
)

func init() {
	for _, mode := range []string{metricModeEncrypted, metricModePlain} {
		metricStagedFiles.WithLabelValues(mode)
		metricStagedBytes.WithLabelValues(mode)
	}
}
