// Copyright 2020 Ant Group. All rights reserved.
// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const (
	tocParseKey       = "parse_total"
	tocCreateKey      = "create_total"
	tocCreateDuration = "create_duration_seconds"
	framesCopiedKey   = "frames_copied_total"
	namespace         = "rpfify"
	subsystem         = "toc"

	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	tocParseCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      tocParseKey,
			Help:      "The total number of parsed table of contents files. Broken down by result.",
		},
		[]string{"result"},
	)

	tocCreateCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      tocCreateKey,
			Help:      "The total number of synthesized table of contents files. Broken down by result.",
		},
		[]string{"result"},
	)

	tocCreateDurationSeconds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      tocCreateDuration,
			Help:      "The total duration of table of contents synthesis including frame copies.",
		},
	)

	framesCopied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      framesCopiedKey,
			Help:      "The total number of frame files copied into synthesized archives.",
		},
	)
)

var register sync.Once
var Registry *prometheus.Registry

func sinceInSeconds(start time.Time) float64 {
	return time.Since(start).Seconds()
}

// Register registers metrics. This is always called only once.
func Register() {
	register.Do(func() {
		Registry = prometheus.NewRegistry()
		Registry.MustRegister(tocParseCount, tocCreateCount, tocCreateDurationSeconds, framesCopied)
	})
}

func result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

func TocParsed(err error) {
	tocParseCount.WithLabelValues(result(err)).Inc()
}

func TocCreated(err error, start time.Time) {
	tocCreateCount.WithLabelValues(result(err)).Inc()
	tocCreateDurationSeconds.Add(sinceInSeconds(start))
}

func FramesCopied(n int) {
	framesCopied.Add(float64(n))
}

// Export writes the registered metrics in the Prometheus text format.
func Export(w io.Writer) error {
	Register()
	families, err := Registry.Gather()
	if err != nil {
		return errors.Wrap(err, "gather metrics")
	}
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			return errors.Wrap(err, "encode metrics")
		}
	}
	return nil
}
