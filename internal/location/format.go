// Copyright (c) 2026 Vesselcomm. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package location

import (
	"fmt"
	"math"
	"time"

	"github.com/vesselcomm/ais-forwarder/internal/nmea"
)

// formatGNRMC produces a single $GNRMC sentence with an embedded leading
// MMSI prefix. For VesselDynamicData, the time/date come from the current
// UTC clock and SOG/COG are empty. For Rmc, selfMMSI prefixes the sentence,
// the message's own timestamp is used when present (else current UTC), and
// SOG/COG are formatted with one decimal when present.
func formatGNRMC(msg nmea.ParsedMessage, selfMMSI uint32) string {
	switch msg.Kind {
	case nmea.KindVesselDynamicData:
		now := time.Now().UTC()
		return buildGNRMC(msg.MMSI, now, msg.Latitude, msg.Longitude, nil, nil)
	case nmea.KindRmc:
		ts := time.Now().UTC()
		if msg.Timestamp != nil {
			ts = msg.Timestamp.UTC()
		}
		return buildGNRMC(selfMMSI, ts, msg.Latitude, msg.Longitude, msg.SOGKnots, msg.BearingDeg)
	default:
		return ""
	}
}

func buildGNRMC(mmsiPrefix uint32, ts time.Time, lat, lon, sog, bearing *float64) string {
	return fmt.Sprintf("%d$GNRMC,%s,A,%s,%s,%s,%s,%s,,,A\r\n",
		mmsiPrefix,
		formatHHMMSS(ts),
		formatLatLong(lat, true),
		formatLatLong(lon, false),
		formatOption(sog),
		formatOption(bearing),
		formatDDMMYY(ts),
	)
}

// formatLatLong renders a coordinate as "{DDDMM.mmmmm},{hemi}" where the
// integer part is degrees*100 and the fractional part is minutes with five
// decimals; an absent value yields a literal bare comma.
func formatLatLong(value *float64, isLat bool) string {
	if value == nil {
		return ","
	}

	v := *value
	hemi := hemisphere(v, isLat)

	abs := math.Abs(v)
	degrees := math.Floor(abs)
	minutes := (abs - degrees) * 60

	ddmm := degrees*100 + minutes
	return fmt.Sprintf("%.5f,%s", ddmm, hemi)
}

func hemisphere(v float64, isLat bool) string {
	if isLat {
		if v < 0 {
			return "S"
		}
		return "N"
	}
	if v < 0 {
		return "W"
	}
	return "E"
}

// formatOption renders an optional numeric field: "" when absent, one
// decimal place when present.
func formatOption(value *float64) string {
	if value == nil {
		return ""
	}
	return fmt.Sprintf("%.1f", *value)
}

func formatHHMMSS(t time.Time) string {
	return fmt.Sprintf("%02d%02d%02d", t.Hour(), t.Minute(), t.Second())
}

func formatDDMMYY(t time.Time) string {
	return fmt.Sprintf("%02d%02d%02d", t.Day(), int(t.Month()), t.Year()%100)
}
