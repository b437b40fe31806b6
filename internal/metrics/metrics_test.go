// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	reg := NewRegistry()
	m := New(reg)
	m.Temperature.WithLabelValues("0x740000070e41ac28").Set(21.5)
	m.Errors.WithLabelValues("crc").Inc()
	m.Devices.Set(1)

	if v := testutil.ToFloat64(m.Temperature.WithLabelValues("0x740000070e41ac28")); v != 21.5 {
		t.Fatal(v)
	}

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`ds18b20_temperature_celsius{address="0x740000070e41ac28"} 21.5`,
		`ds18b20_errors_total{kind="crc"} 1`,
		"ds18b20_devices 1",
		"go_goroutines",
	} {
		if !strings.Contains(string(b), want) {
			t.Errorf("missing %q", want)
		}
	}
}
