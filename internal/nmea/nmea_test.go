// Copyright (c) 2026 Vesselcomm. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package nmea

import "testing"

func TestParse_RmcValidFix(t *testing.T) {
	p := NewParser(123456789)
	msg, err := p.Parse("$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A\r\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.Kind != KindRmc {
		t.Fatalf("Kind = %v, want KindRmc", msg.Kind)
	}
	if msg.Latitude == nil || msg.Longitude == nil {
		t.Fatal("expected lat/lon for a valid fix")
	}
}

func TestParse_RmcVoidFix(t *testing.T) {
	p := NewParser(123456789)
	msg, err := p.Parse("$GPRMC,123519,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*7D\r\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.Kind != KindRmc {
		t.Fatalf("Kind = %v, want KindRmc", msg.Kind)
	}
	if msg.Latitude != nil {
		t.Error("expected nil lat/lon on a void fix")
	}
}

func TestParse_MalformedLine(t *testing.T) {
	p := NewParser(123456789)
	if _, err := p.Parse("not a sentence at all"); err == nil {
		t.Fatal("expected parse error for malformed line")
	}
}

func TestParse_UnsupportedSentence(t *testing.T) {
	p := NewParser(123456789)
	msg, err := p.Parse("$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47\r\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.Kind != KindUnsupported {
		t.Errorf("Kind = %v, want KindUnsupported", msg.Kind)
	}
}

func TestParse_VDMSinglePartFragmentReassembly(t *testing.T) {
	p := NewParser(123456789)
	// Single-fragment AIVDM: decodes directly, no reassembly required.
	msg, err := p.Parse("!AIVDM,1,1,,B,15NPOOPP00o?b=bE`UNv4?w428D;,0*27\r\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.Kind == KindIncomplete {
		t.Fatal("single-fragment message should never be Incomplete")
	}
}

func TestParse_VDMMultiPartIncompleteThenComplete(t *testing.T) {
	p := NewParser(123456789)

	// A synthetic two-part message using the same MessageID; the first part
	// alone cannot be decoded.
	first, err := p.Parse("!AIVDM,2,1,9,A,55NBjP02A;lhT@?;6210Lu8F0<0pE@B222222216@@h00000009`720,0*0E\r\n")
	if err != nil {
		t.Fatalf("Parse(first): %v", err)
	}
	if first.Kind != KindIncomplete {
		t.Fatalf("first fragment Kind = %v, want KindIncomplete", first.Kind)
	}

	second, err := p.Parse("!AIVDM,2,2,9,A,000000000000000,2*2D\r\n")
	if err != nil {
		t.Fatalf("Parse(second): %v", err)
	}
	if second.Kind == KindIncomplete {
		t.Fatal("second fragment should complete the reassembly")
	}
}

func TestIsMoving(t *testing.T) {
	lat1, lon1 := 53.17, 5.42
	lat2, lon2 := 53.18, 5.42

	if IsMoving(nil, &lon2, &lat1, &lon1) {
		t.Error("IsMoving with nil current sample should be false")
	}
	if !IsMoving(&lat2, &lon2, &lat1, &lon1) {
		t.Error("expected motion for a 0.01 degree latitude delta")
	}
	if IsMoving(&lat1, &lon1, &lat1, &lon1) {
		t.Error("expected no motion for an identical sample")
	}
}
