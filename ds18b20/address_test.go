// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"errors"
	"testing"

	"github.com/GermanBionicSystems/thermometer/crc8"
)

const (
	addr    Address = 0x740000070e41ac28
	addr2   Address = 0x230000046eafbc28
	foreign Address = 0xac000802f3a1b210 // DS18S20
)

func TestAddress(t *testing.T) {
	if f := addr.FamilyCode(); f != DS18B20 {
		t.Fatalf("family %s", f)
	}
	if f := foreign.FamilyCode(); f != DS18S20 || f.String() != "DS18S20" {
		t.Fatalf("family %s", f)
	}
	if s := addr.Serial(); s != 0x0000070e41ac {
		t.Fatalf("serial %#x", s)
	}
	if c := addr.CRC(); c != 0x74 {
		t.Fatalf("crc %#x", c)
	}
	if b := addr.Bytes(); b != [8]byte{0x28, 0xac, 0x41, 0x0e, 0x07, 0x00, 0x00, 0x74} {
		t.Fatalf("bytes %#v", b)
	}
	if s := addr.String(); s != "0x740000070e41ac28" {
		t.Fatal(s)
	}
	if s := Family(0x42).String(); s != "unknown(0x42)" {
		t.Fatal(s)
	}
}

func TestAddress_Check(t *testing.T) {
	for _, a := range []Address{addr, addr2, foreign} {
		if err := a.Check(); err != nil {
			t.Errorf("%s: %v", a, err)
		}
	}
	var crcErr *crc8.Error
	if err := (addr + 1<<56).Check(); !errors.As(err, &crcErr) || crcErr.CRC != 94 {
		t.Fatalf("expected CRC error 94, got %v", err)
	}
}

func TestParseAddress(t *testing.T) {
	for _, s := range []string{"0x740000070e41ac28", "740000070e41ac28", " 0X740000070E41AC28 "} {
		a, err := ParseAddress(s)
		if err != nil {
			t.Fatal(err)
		}
		if a != addr {
			t.Fatalf("%q: got %s", s, a)
		}
	}
	for _, s := range []string{"", "0x", "28.ac41", "0x1740000070e41ac28"} {
		if _, err := ParseAddress(s); err == nil {
			t.Errorf("%q should fail", s)
		}
	}
}
