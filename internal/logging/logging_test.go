// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/GermanBionicSystems/thermometer/internal/config"
)

func TestNew_file(t *testing.T) {
	p := filepath.Join(t.TempDir(), "thermometer.log")
	l, err := New(config.LoggingConfig{Level: "warn", Format: "json", File: config.LumberjackConfig{Filename: p, MaxSizeMB: 1}})
	if err != nil {
		t.Fatal(err)
	}
	l.Info("hidden")
	l.Warn("shown")
	_ = l.Sync()
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if s := string(b); strings.Contains(s, "hidden") || !strings.Contains(s, `"msg":"shown"`) {
		t.Fatalf("unexpected log content: %s", s)
	}
}

func TestNew_badLevel(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Fatal("expected an error")
	}
}
