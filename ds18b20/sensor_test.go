// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"testing"
	"time"

	"periph.io/x/conn/v3/onewire/onewiretest"
	"periph.io/x/conn/v3/physic"
)

// spad85C is the power-on content of the scratchpad.
var spad85C = []byte{0x50, 0x05, 0x4b, 0x46, 0x7f, 0xff, 0x0c, 0x10, 0x1c}

func TestSensor_Sense(t *testing.T) {
	ops := []onewiretest.IO{
		// NewSensor
		{W: concat(addrWire, []byte{0xbe}), R: spad30C},
		// Sense
		{W: concat(addrWire, []byte{0x44}), Pull: true},
		{W: concat(addrWire, []byte{0xbe}), R: spad30C},
	}
	bus := onewiretest.Playback{Ops: ops}
	s, err := NewSensor(New(NewBusTransport(&bus), nil), addr)
	if err != nil {
		t.Fatal(err)
	}
	if str := s.String(); str != "DS18B20{0x740000070e41ac28}" {
		t.Fatal(str)
	}
	if s.Address() != addr {
		t.Fatal(s.Address())
	}
	e := physic.Env{}
	if err := s.Sense(&e); err != nil {
		t.Fatal(err)
	}
	if expected := 30*physic.Celsius + physic.ZeroCelsius; e.Temperature != expected {
		t.Errorf("expected %s, got %s", expected.String(), e.Temperature.String())
	}
	s.Precision(&e)
	if e.Temperature != 250*physic.MilliKelvin {
		t.Errorf("precision %s", e.Temperature)
	}
	if err := s.Halt(); err != nil {
		t.Fatal(err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSensor_Sense_powerOn(t *testing.T) {
	ops := []onewiretest.IO{
		{W: concat(addrWire, []byte{0xbe}), R: spad85C},
		{W: concat(addrWire, []byte{0x44}), Pull: true},
		{W: concat(addrWire, []byte{0xbe}), R: spad85C},
	}
	bus := onewiretest.Playback{Ops: ops}
	s, err := NewSensor(New(NewBusTransport(&bus), nil), addr)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Sense(&physic.Env{}); err == nil {
		t.Fatal("85°C right after a conversion should be rejected")
	}
}

func TestNewSensor_fail_read(t *testing.T) {
	bus := &onewiretest.Playback{DontPanic: true}
	if s, err := NewSensor(New(NewBusTransport(bus), nil), addr); s != nil || err == nil {
		t.Fatal("expected failure")
	}
}

func TestSensor_SenseContinuous(t *testing.T) {
	ops := []onewiretest.IO{
		{W: concat(addrWire, []byte{0xbe}), R: spad30C},
	}
	for range 3 {
		ops = append(ops,
			onewiretest.IO{W: concat(addrWire, []byte{0x44}), Pull: true},
			onewiretest.IO{W: concat(addrWire, []byte{0xbe}), R: spad30C})
	}
	bus := onewiretest.Playback{Ops: ops, DontPanic: true}
	s, err := NewSensor(New(NewBusTransport(&bus), nil), addr)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.SenseContinuous(0); err == nil {
		t.Fatal("expected invalid interval")
	}
	c, err := s.SenseContinuous(time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.SenseContinuous(time.Millisecond); err == nil {
		t.Fatal("expected already sensing")
	}
	for range 2 {
		e := <-c
		if expected := 30*physic.Celsius + physic.ZeroCelsius; e.Temperature != expected {
			t.Fatalf("expected %s, got %s", expected, e.Temperature)
		}
	}
	if err := s.Halt(); err != nil {
		t.Fatal(err)
	}
	for range c {
	}
}
