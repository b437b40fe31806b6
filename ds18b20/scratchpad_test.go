// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/thermometer/crc8"
)

// TestTemperature checks the conversion against the table on datasheet p.4.
func TestTemperature(t *testing.T) {
	var testData = []struct {
		msb, lsb byte
		expected float32
	}{
		{0x07, 0xD0, 125},
		{0x05, 0x50, 85},
		{0x01, 0x91, 25.0625},
		{0x00, 0xA2, 10.125},
		{0x00, 0x08, 0.5},
		{0x00, 0x00, 0},
		{0xFF, 0xF8, -0.5},
		{0xFF, 0x5E, -10.125},
		{0xFE, 0x6F, -25.0625},
		{0xFC, 0x90, -55},
	}
	for _, entry := range testData {
		t.Run(fmt.Sprintf("%f", entry.expected), func(st *testing.T) {
			if c := Temperature(entry.msb, entry.lsb); c != entry.expected {
				st.Errorf("expected %f, got %f", entry.expected, c)
			}
		})
	}
}

func TestParseConfigurationRegister(t *testing.T) {
	valid := map[byte]Resolution{
		0b0001_1111: Resolution9,
		0b0011_1111: Resolution10,
		0b0101_1111: Resolution11,
		0b0111_1111: Resolution12,
	}
	for v := range 256 {
		b := byte(v)
		c, err := ParseConfigurationRegister(b)
		if r, ok := valid[b]; ok {
			if err != nil {
				t.Fatalf("%#08b: %v", b, err)
			}
			if c.Resolution != r {
				t.Fatalf("%#08b: got %s, expected %s", b, c.Resolution, r)
			}
			if enc, err := c.Byte(); err != nil || enc != b {
				t.Fatalf("%#08b: round trip gave %#08b, %v", b, enc, err)
			}
			continue
		}
		var cerr *ConfigurationRegisterError
		if !errors.As(err, &cerr) {
			t.Fatalf("%#08b: expected ConfigurationRegisterError, got %v", b, err)
		}
		if cerr.Value != b {
			t.Fatalf("%#08b: error carries %#08b", b, cerr.Value)
		}
	}
}

func TestConfigurationRegister_Byte_invalid(t *testing.T) {
	if _, err := (ConfigurationRegister{Resolution: Resolution(4)}).Byte(); err == nil {
		t.Fatal("expected error")
	}
}

func TestResolution(t *testing.T) {
	var testData = []struct {
		r    Resolution
		bits int
		conv time.Duration
		step physic.Temperature
	}{
		{Resolution9, 9, 93750 * time.Microsecond, 500 * physic.MilliKelvin},
		{Resolution10, 10, 187500 * time.Microsecond, 250 * physic.MilliKelvin},
		{Resolution11, 11, 375 * time.Millisecond, 125 * physic.MilliKelvin},
		{Resolution12, 12, 750 * time.Millisecond, 62500 * physic.MicroKelvin},
	}
	for _, entry := range testData {
		if b := entry.r.Bits(); b != entry.bits {
			t.Errorf("%s: got %d bits", entry.r, b)
		}
		if d := entry.r.ConversionTime(); d != entry.conv {
			t.Errorf("%s: conversion time %s, expected %s", entry.r, d, entry.conv)
		}
		if s := entry.r.Step(); s != entry.step {
			t.Errorf("%s: step %s, expected %s", entry.r, s, entry.step)
		}
		r, err := ResolutionFromBits(entry.bits)
		if err != nil || r != entry.r {
			t.Errorf("ResolutionFromBits(%d)=%s, %v", entry.bits, r, err)
		}
	}
	for _, bits := range []int{0, 8, 13} {
		if _, err := ResolutionFromBits(bits); err == nil {
			t.Errorf("ResolutionFromBits(%d) should fail", bits)
		}
	}
	var zero Resolution
	if zero.Bits() != 12 {
		t.Fatal("zero value should be the 12 bits default")
	}
	if s := Resolution(9).String(); s != "Resolution(9)" {
		t.Fatal(s)
	}
}

func TestDecodeScratchpad(t *testing.T) {
	var testData = []struct {
		buf      [ScratchpadSize]byte
		expected Scratchpad
	}{
		{
			[ScratchpadSize]byte{0x91, 0x01, 0x1e, 0x0a, 0x7f, 0xff, 0x0c, 0x10, 0x7d},
			Scratchpad{
				Temperature:   25.0625,
				AlarmHigh:     30,
				AlarmLow:      10,
				Configuration: ConfigurationRegister{Resolution: Resolution12},
				Reserved:      [3]byte{0xff, 0x0c, 0x10},
				CRC:           0x7d,
			},
		},
		{
			[ScratchpadSize]byte{0x6f, 0xfe, 0x1e, 0xf6, 0x5f, 0xff, 0x0c, 0x10, 0x12},
			Scratchpad{
				Temperature:   -25.0625,
				AlarmHigh:     30,
				AlarmLow:      -10,
				Configuration: ConfigurationRegister{Resolution: Resolution11},
				Reserved:      [3]byte{0xff, 0x0c, 0x10},
				CRC:           0x12,
			},
		},
		{
			[ScratchpadSize]byte{0xa2, 0x00, 0x1e, 0x0a, 0x1f, 0xff, 0x0e, 0x10, 0x78},
			Scratchpad{
				Temperature:   10.125,
				AlarmHigh:     30,
				AlarmLow:      10,
				Configuration: ConfigurationRegister{Resolution: Resolution9},
				Reserved:      [3]byte{0xff, 0x0e, 0x10},
				CRC:           0x78,
			},
		},
	}
	for _, entry := range testData {
		if err := crc8.Check(entry.buf[:]); err != nil {
			t.Fatalf("bad test vector %#v: %v", entry.buf, err)
		}
		s, err := DecodeScratchpad(entry.buf)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(entry.expected, s); diff != "" {
			t.Errorf("DecodeScratchpad() mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestDecodeScratchpad_configuration(t *testing.T) {
	buf := [ScratchpadSize]byte{0x91, 0x01, 0x1e, 0x0a, 0x3e, 0xff, 0x0c, 0x10, 0x12}
	_, err := DecodeScratchpad(buf)
	var cerr *ConfigurationRegisterError
	if !errors.As(err, &cerr) || cerr.Value != 0x3e {
		t.Fatalf("expected configuration register error, got %v", err)
	}
}

// TestScratchpad_roundTrip checks that the writable fields read back as they
// were written.
func TestScratchpad_roundTrip(t *testing.T) {
	for _, r := range []Resolution{Resolution9, Resolution10, Resolution11, Resolution12} {
		for _, alarm := range [][2]int8{{30, 10}, {125, -55}, {-128, 127}, {0, 0}} {
			in := Scratchpad{AlarmHigh: alarm[0], AlarmLow: alarm[1], Configuration: ConfigurationRegister{Resolution: r}}
			w, err := in.Encode()
			if err != nil {
				t.Fatal(err)
			}
			// What the device reports after the write.
			buf := [ScratchpadSize]byte{0x50, 0x05, w[0], w[1], w[2], 0xff, 0x0c, 0x10}
			buf[8] = crc8.Calculate(buf[:8])
			if err := crc8.Check(buf[:]); err != nil {
				t.Fatal(err)
			}
			out, err := DecodeScratchpad(buf)
			if err != nil {
				t.Fatal(err)
			}
			if out.AlarmHigh != in.AlarmHigh || out.AlarmLow != in.AlarmLow || out.Configuration != in.Configuration {
				t.Fatalf("wrote %+v, read back %+v", in, out)
			}
		}
	}
}

func TestScratchpad_Encode(t *testing.T) {
	s := Scratchpad{AlarmHigh: 30, AlarmLow: -10, Configuration: ConfigurationRegister{Resolution: Resolution10}}
	w, err := s.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if w != [3]byte{30, 0xf6, 0x3f} {
		t.Fatalf("%#v", w)
	}
	s.Configuration.Resolution = 7
	if _, err := s.Encode(); err == nil {
		t.Fatal("expected error")
	}
}

func TestScratchpad_Celsius(t *testing.T) {
	for _, c := range []float32{125, 25.0625, 0, -0.5, -55} {
		s := Scratchpad{Temperature: c}
		if got := s.Celsius().Celsius(); got != float64(c) {
			t.Errorf("expected %f, got %f", c, got)
		}
	}
}
