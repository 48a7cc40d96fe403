// metrics.go - server instrumentation
// Copyright (C) 2026  The mietze authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	commandsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mietze",
			Name:      "commands_total",
			Help:      "Number of commands processed, by command.",
		},
		[]string{"command"},
	)

	commandErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mietze",
			Name:      "command_errors_total",
			Help:      "Number of commands that produced an error reply.",
		},
	)

	connectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mietze",
			Name:      "connected_clients",
			Help:      "Number of connected clients.",
		},
	)

	connectedReplicas = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mietze",
			Name:      "connected_replicas",
			Help:      "Number of attached replica links.",
		},
	)

	propagatedBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mietze",
			Name:      "propagated_bytes_total",
			Help:      "Bytes of write commands propagated to replicas.",
		},
	)
)

// initMetrics exposes the instrumentation endpoint when the operator
// configured one.
func (s *Server) initMetrics() {
	addr := s.cfg.Server.MetricsAddress
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	s.Go(func() {
		<-s.HaltCh()
		srv.Close()
	})
	s.Go(func() {
		s.log.Noticef("Metrics endpoint listening on %v.", addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Errorf("Metrics endpoint failed: %v", err)
		}
	})
}
