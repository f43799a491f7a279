// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	Register()

	parsedOK := testutil.ToFloat64(tocParseCount.WithLabelValues(ResultSuccess))
	parsedFailed := testutil.ToFloat64(tocParseCount.WithLabelValues(ResultFailure))
	TocParsed(nil)
	TocParsed(errors.New("broken"))
	require.Equal(t, parsedOK+1, testutil.ToFloat64(tocParseCount.WithLabelValues(ResultSuccess)))
	require.Equal(t, parsedFailed+1, testutil.ToFloat64(tocParseCount.WithLabelValues(ResultFailure)))

	copied := testutil.ToFloat64(framesCopied)
	FramesCopied(3)
	require.Equal(t, copied+3, testutil.ToFloat64(framesCopied))

	created := testutil.ToFloat64(tocCreateCount.WithLabelValues(ResultSuccess))
	TocCreated(nil, time.Now().Add(-time.Second))
	require.Equal(t, created+1, testutil.ToFloat64(tocCreateCount.WithLabelValues(ResultSuccess)))
	require.GreaterOrEqual(t, testutil.ToFloat64(tocCreateDurationSeconds), 1.0)
}

func TestExport(t *testing.T) {
	TocParsed(nil)

	var buf bytes.Buffer
	require.NoError(t, Export(&buf))
	require.Contains(t, buf.String(), "rpfify_toc_parse_total")
	require.Contains(t, buf.String(), `result="success"`)
}
