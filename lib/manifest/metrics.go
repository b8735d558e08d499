// Copyright (C) 2023 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package manifest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crossdrop",
		Subsystem: "manifest",
		Name:      "entries_total",
		Help:      "Total number of manifest entries built, by type",
	}, []string{"type"})
	metricSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crossdrop",
		Subsystem: "manifest",
		Name:      "skipped_total",
		Help:      "Total number of items left out of a manifest, by reason",
	}, []string{"reason"})
)

const (
	metricTypeFile = "file"
	metricTypeDir  = "dir"

	metricReasonIgnored    = "ignored"
	metricReasonUnreadable = "unreadable"
	metricReasonLoop       = "loop"
	metricReasonSpecial    = "special"
)
