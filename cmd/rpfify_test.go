// Copyright 2026 Nydus Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsPossibleValue(t *testing.T) {
	list := []string{"oss", "s3"}
	require.True(t, isPossibleValue(list, "s3"))
	require.False(t, isPossibleValue(list, "registry"))
}

func TestParseBackendConfig(t *testing.T) {
	configJSON := `
	{
		"bucket_name": "test",
		"endpoint": "region.oss.com",
		"access_key_id": "testAK",
		"access_key_secret": "testSK",
		"object_prefix": "charts/"
	}`
	require.True(t, json.Valid([]byte(configJSON)))

	path := filepath.Join(t.TempDir(), "backend.json")
	require.NoError(t, os.WriteFile(path, []byte(configJSON), 0644))

	resultJSON, err := parseBackendConfig("", path)
	require.NoError(t, err)
	require.Equal(t, configJSON, resultJSON)

	resultJSON, err = parseBackendConfig(configJSON, "")
	require.NoError(t, err)
	require.Equal(t, configJSON, resultJSON)

	_, err = parseBackendConfig(configJSON, path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "--backend-config conflicts with --backend-config-file")

	_, err = parseBackendConfig("", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse backend config file")
}

func TestPrintSummary(t *testing.T) {
	summary := &tocSummary{
		Path:     "/charts/RPF/A.TOC",
		FileName: "A.TOC",
		DateTime: "04050607ZMAR26",
		Entries: []entrySummary{
			{
				Index:            0,
				ProductDataType:  "CADRG",
				CompressionRatio: "55:1",
				Scale:            "1:250K",
				Zone:             "2",
				South:            30,
				West:             -100,
				North:            31,
				East:             -99,
				FramesVertical:   2,
				FramesHorizontal: 3,
				Frames:           []string{"N1/0A1B2C01.ON1"},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printSummary(&buf, summary, false))
	require.Equal(t, "/charts/RPF/A.TOC (A.TOC, 04050607ZMAR26)\n"+
		"entry 0: CADRG 55:1 1:250K zone 2, 2x3 frames, 1 present\n"+
		"  extent: south 30.000000 west -100.000000 north 31.000000 east -99.000000\n"+
		"  N1/0A1B2C01.ON1\n", buf.String())

	buf.Reset()
	require.NoError(t, printSummary(&buf, summary, true))
	var decoded tocSummary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, *summary, decoded)
}

func TestAppFailures(t *testing.T) {
	dir := t.TempDir()
	metricsFile := filepath.Join(dir, "metrics.prom")

	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &out

	err := app.Run([]string{"rpfify", "--metrics-file", metricsFile, "inspect", "--toc", filepath.Join(dir, "A.TOC")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "A.TOC")

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	require.Contains(t, string(data), "rpfify_toc_parse_total")

	err = app.Run([]string{"rpfify", "push", "--dir", dir, "--backend-type", "registry"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "--backend-type should be one of")

	err = app.Run([]string{"rpfify", "push", "--dir", dir, "--backend-type", "s3"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "--backend-config or --backend-config-file required")

	err = app.Run([]string{"rpfify", "create", "--manifest", filepath.Join(dir, "missing.rpf"), "--output", filepath.Join(dir, "out")})
	require.Error(t, err)
	require.NoDirExists(t, filepath.Join(dir, "out"))

	err = app.Run([]string{"rpfify", "--log-level", "loud", "inspect", "--toc", "A.TOC"})
	require.Error(t, err)
}
