/*
Copyright 2023 Alibaba Group Holding Limited.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package exporter

import (
	"strconv"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle"
	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/cpumask"
)

const namespace = "cpuidle"

// Source is the registry state exported on every scrape.
type Source interface {
	Drivers() []cpuidle.DriverInfo
	Possible() cpumask.Mask
	Disabled() bool
}

// BroadcastSource reports the units running on the broadcast timer.
type BroadcastSource interface {
	BroadcastMask() cpumask.Mask
}

var (
	possibleUnits = NewMetric("possible_units", namespace, "", "Number of units the registry governs.", prometheus.GaugeValue, nil, nil)
	disabled      = NewMetric("disabled", namespace, "", "Whether idle management is globally disabled.", prometheus.GaugeValue, nil, nil)
	registered    = NewMetric("drivers_registered", namespace, "", "Number of registered drivers.", prometheus.GaugeValue, nil, nil)
	broadcastOn   = NewMetric("broadcast_units", namespace, "", "Number of units relying on the broadcast timer.", prometheus.GaugeValue, nil, nil)

	driverMetrics = map[string]Metric{
		"refcount":  NewMetric("refcount", namespace, "driver", "Outstanding references to the driver.", prometheus.GaugeValue, []string{"driver"}, nil),
		"units":     NewMetric("units", namespace, "driver", "Number of units owned by the driver.", prometheus.GaugeValue, []string{"driver"}, nil),
		"states":    NewMetric("states", namespace, "driver", "Number of idle states of the driver.", prometheus.GaugeValue, []string{"driver"}, nil),
		"broadcast": NewMetric("broadcast", namespace, "driver", "Whether the driver needs the broadcast timer.", prometheus.GaugeValue, []string{"driver"}, nil),
	}
)

// Exporter exports registry state and idle entry statistics. It implements
// prometheus.Collector and cpuidle.EnterObserver.
type Exporter struct {
	logger logr.Logger
	mutex  sync.Mutex

	source    Source
	broadcast BroadcastSource

	totalScrapes prometheus.Counter
	entries      *prometheus.CounterVec
	residency    *prometheus.CounterVec
	demotions    *prometheus.CounterVec
}

func NewExporter(logger logr.Logger) *Exporter {
	return &Exporter{
		logger: logger.WithName("exporter"),
		totalScrapes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exporter_scrapes_total",
			Help:      "Total number of scrapes.",
		}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "entries_total",
			Help:      "Number of times an idle state was entered.",
		}, []string{"driver", "state"}),
		residency: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "residency_seconds_total",
			Help:      "Time spent in an idle state.",
		}, []string{"driver", "state"}),
		demotions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "demotions_total",
			Help:      "Number of entries that ended in another state than requested.",
		}, []string{"driver", "state"}),
	}
}

// Watch binds the exporter to the registry it reports on. broadcast may be nil.
func (e *Exporter) Watch(source Source, broadcast BroadcastSource) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.source = source
	e.broadcast = broadcast
}

func stateLabel(drv *cpuidle.Driver, index int) string {
	if index >= 0 && index < len(drv.States) && drv.States[index].Name != "" {
		return drv.States[index].Name
	}
	return strconv.Itoa(index)
}

func (e *Exporter) ObserveEnter(drv *cpuidle.Driver, requested, entered int, residency time.Duration) {
	state := stateLabel(drv, entered)
	e.entries.WithLabelValues(drv.Name, state).Inc()
	e.residency.WithLabelValues(drv.Name, state).Add(residency.Seconds())
	if requested != entered {
		e.demotions.WithLabelValues(drv.Name, stateLabel(drv, requested)).Inc()
	}
}

// Describe describes all the metrics ever exported by the exporter.
// It implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- possibleUnits.Desc
	ch <- disabled.Desc
	ch <- registered.Desc
	ch <- broadcastOn.Desc
	for _, m := range driverMetrics {
		ch <- m.Desc
	}
	ch <- e.totalScrapes.Desc()
	e.entries.Describe(ch)
	e.residency.Describe(ch)
	e.demotions.Describe(ch)
}

// Collect reads the registry and delivers the metrics. It implements
// prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.totalScrapes.Inc()
	if e.source != nil {
		e.scrape(ch)
	} else {
		e.logger.V(1).Info("no registry to scrape")
	}

	ch <- e.totalScrapes
	e.entries.Collect(ch)
	e.residency.Collect(ch)
	e.demotions.Collect(ch)
}

func (e *Exporter) scrape(ch chan<- prometheus.Metric) {
	drivers := e.source.Drivers()
	ch <- possibleUnits.mustNewConstMetric(float64(e.source.Possible().Len()))
	ch <- disabled.mustNewConstMetric(boolToFloat(e.source.Disabled()))
	ch <- registered.mustNewConstMetric(float64(len(drivers)))
	if e.broadcast != nil {
		ch <- broadcastOn.mustNewConstMetric(float64(e.broadcast.BroadcastMask().Len()))
	}
	for _, drv := range drivers {
		ch <- driverMetrics["refcount"].mustNewConstMetric(float64(drv.Refcount), drv.Name)
		ch <- driverMetrics["units"].mustNewConstMetric(float64(drv.Mask.Len()), drv.Name)
		ch <- driverMetrics["states"].mustNewConstMetric(float64(len(drv.States)), drv.Name)
		ch <- driverMetrics["broadcast"].mustNewConstMetric(boolToFloat(drv.NeedsBroadcast), drv.Name)
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
