// Copyright (C) 2023 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricPacketsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crossdrop",
		Subsystem: "discover",
		Name:      "packets_received_total",
		Help:      "Total number of discovery packets received, by kind",
	}, []string{"kind"})
	metricPacketsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crossdrop",
		Subsystem: "discover",
		Name:      "packets_sent_total",
		Help:      "Total number of discovery packets sent, by kind",
	}, []string{"kind"})
	metricSendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crossdrop",
		Subsystem: "discover",
		Name:      "send_failures_total",
		Help:      "Total number of discovery packets that could not be sent, by kind",
	}, []string{"kind"})
	metricDevicesFound = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crossdrop",
		Subsystem: "discover",
		Name:      "devices_found_total",
		Help:      "Total number of device records produced from replies",
	})
)

const (
	metricKindDiscover = "discover"
	metricKindReply    = "reply"
	metricKindOther    = "other"
)

func init() {
	for _, kind := range []string{metricKindDiscover, metricKindReply, metricKindOther} {
		metricPacketsReceived.WithLabelValues(kind)
	}
	for _, kind := range []string{metricKindDiscover, metricKindReply} {
		metricPacketsSent.WithLabelValues(kind)
		metricSendFailures.WithLabelValues(kind)
	}
}
