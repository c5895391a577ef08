// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package bundle

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus collectors for the bundle registry and resource engine.
// Registered on the default registry; the CLI's serve command exposes
// them via promhttp.
var (
	metricBundlesLive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "bundlekit",
		Name:      "bundles_live",
		Help:      "Bundles currently present in the global registry.",
	})
	metricLoads = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bundlekit",
		Name:      "executable_loads_total",
		Help:      "Successful executable loads.",
	})
	metricUnloads = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bundlekit",
		Name:      "executable_unloads_total",
		Help:      "Executable unloads.",
	})
	metricQueryTableBuilds = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bundlekit",
		Name:      "query_table_builds_total",
		Help:      "Resource query tables built from directory scans.",
	})
	metricQueryCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bundlekit",
		Name:      "query_table_cache_hits_total",
		Help:      "Resource queries answered from a cached query table.",
	})
	metricResourceQueries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bundlekit",
		Name:      "resource_queries_total",
		Help:      "Resource URL queries answered.",
	})
)

func init() {
	prometheus.MustRegister(
		metricBundlesLive,
		metricLoads,
		metricUnloads,
		metricQueryTableBuilds,
		metricQueryCacheHits,
		metricResourceQueries,
	)
}
