// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Spoorlab

package web

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spoorlab/lnmon/pkg/layout"
	"github.com/spoorlab/lnmon/pkg/link"
)

// newRegistry builds the Prometheus registry: Go runtime and process
// collectors plus the bus collector.
func newRegistry(l *link.Link, keeper *layout.Scrollkeeper) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		newBusCollector(l, keeper),
	)
	return reg
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// busCollector exports the link counters and mirror sizes as const
// metrics, reading the live values on every scrape. The link keeps its
// own atomic tallies, so nothing is double-counted here.
type busCollector struct {
	link   *link.Link
	keeper *layout.Scrollkeeper

	messagesIn     *prometheus.Desc
	messagesOut    *prometheus.Desc
	bytesIn        *prometheus.Desc
	bytesOut       *prometheus.Desc
	checksumErrors *prometheus.Desc
	truncations    *prometheus.Desc
	strayBytes     *prometheus.Desc
	inboundDropped *prometheus.Desc
	writeErrors    *prometheus.Desc
	callbackPanics *prometheus.Desc
	inByOpcode     *prometheus.Desc
	entities       *prometheus.Desc
}

func newBusCollector(l *link.Link, keeper *layout.Scrollkeeper) *busCollector {
	return &busCollector{
		link:   l,
		keeper: keeper,
		messagesIn: prometheus.NewDesc("lnmon_link_messages_in_total",
			"Messages decoded from the bus.", nil, nil),
		messagesOut: prometheus.NewDesc("lnmon_link_messages_out_total",
			"Messages transmitted to the bus.", nil, nil),
		bytesIn: prometheus.NewDesc("lnmon_link_bytes_in_total",
			"Bytes read from the transport.", nil, nil),
		bytesOut: prometheus.NewDesc("lnmon_link_bytes_out_total",
			"Bytes written to the transport.", nil, nil),
		checksumErrors: prometheus.NewDesc("lnmon_link_checksum_errors_total",
			"Frames discarded for a bad checksum.", nil, nil),
		truncations: prometheus.NewDesc("lnmon_link_truncations_total",
			"Frames cut short by an early opcode.", nil, nil),
		strayBytes: prometheus.NewDesc("lnmon_link_stray_bytes_total",
			"Bytes skipped while hunting for an opcode.", nil, nil),
		inboundDropped: prometheus.NewDesc("lnmon_link_inbound_dropped_total",
			"Decoded messages dropped by a full inbound queue.", nil, nil),
		writeErrors: prometheus.NewDesc("lnmon_link_write_errors_total",
			"Transport write failures.", nil, nil),
		callbackPanics: prometheus.NewDesc("lnmon_link_callback_panics_total",
			"Subscriber callbacks that panicked.", nil, nil),
		inByOpcode: prometheus.NewDesc("lnmon_link_messages_in_by_opcode_total",
			"Inbound messages by opcode mnemonic.", []string{"opcode"}, nil),
		entities: prometheus.NewDesc("lnmon_layout_entities",
			"Entities in the layout mirror.", []string{"kind"}, nil),
	}
}

func (c *busCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.messagesIn
	ch <- c.messagesOut
	ch <- c.bytesIn
	ch <- c.bytesOut
	ch <- c.checksumErrors
	ch <- c.truncations
	ch <- c.strayBytes
	ch <- c.inboundDropped
	ch <- c.writeErrors
	ch <- c.callbackPanics
	ch <- c.inByOpcode
	ch <- c.entities
}

func (c *busCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.link.Stats()
	ch <- prometheus.MustNewConstMetric(c.messagesIn, prometheus.CounterValue, float64(st.MessagesIn))
	ch <- prometheus.MustNewConstMetric(c.messagesOut, prometheus.CounterValue, float64(st.MessagesOut))
	ch <- prometheus.MustNewConstMetric(c.bytesIn, prometheus.CounterValue, float64(st.BytesIn))
	ch <- prometheus.MustNewConstMetric(c.bytesOut, prometheus.CounterValue, float64(st.BytesOut))
	ch <- prometheus.MustNewConstMetric(c.checksumErrors, prometheus.CounterValue, float64(st.ChecksumErrors))
	ch <- prometheus.MustNewConstMetric(c.truncations, prometheus.CounterValue, float64(st.Truncations))
	ch <- prometheus.MustNewConstMetric(c.strayBytes, prometheus.CounterValue, float64(st.StrayBytes))
	ch <- prometheus.MustNewConstMetric(c.inboundDropped, prometheus.CounterValue, float64(st.InboundDropped))
	ch <- prometheus.MustNewConstMetric(c.writeErrors, prometheus.CounterValue, float64(st.WriteErrors))
	ch <- prometheus.MustNewConstMetric(c.callbackPanics, prometheus.CounterValue, float64(st.CallbackPanics))

	for op, n := range c.link.InboundByOpcode() {
		ch <- prometheus.MustNewConstMetric(c.inByOpcode, prometheus.CounterValue, float64(n), op)
	}

	slots, switches, sensors := c.keeper.Counts()
	ch <- prometheus.MustNewConstMetric(c.entities, prometheus.GaugeValue, float64(slots), "slots")
	ch <- prometheus.MustNewConstMetric(c.entities, prometheus.GaugeValue, float64(switches), "switches")
	ch <- prometheus.MustNewConstMetric(c.entities, prometheus.GaugeValue, float64(sensors), "sensors")
}
