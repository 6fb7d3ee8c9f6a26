// Copyright (c) 2026 Vesselcomm. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package nmea wraps a raw-NMEA-0183-sentence parser and an AIS payload
// decoder behind the ParsedMessage sum type the dispatcher consumes:
// VesselDynamicData, VesselStaticData, Rmc, Incomplete or Unsupported.
package nmea

import (
	"time"

	"github.com/BertoldVdb/go-ais"
	"github.com/adrianmo/go-nmea"
)

// Kind discriminates the ParsedMessage variants.
type Kind int

const (
	KindUnsupported Kind = iota
	KindIncomplete
	KindVesselDynamicData
	KindVesselStaticData
	KindRmc
)

// ParsedMessage is the decoded result of feeding one raw line to the Parser.
type ParsedMessage struct {
	Kind       Kind
	MMSI       uint32
	OwnVessel  bool
	Latitude   *float64
	Longitude  *float64
	Timestamp  *time.Time
	SOGKnots   *float64
	BearingDeg *float64
}

// fragmentSet accumulates the parts of a multi-sentence AIVDM/AIVDO message
// until every fragment has arrived.
type fragmentSet struct {
	parts    map[int64][]byte
	numParts int64
	seenAt   time.Time
}

// Parser reassembles AIS fragments and decodes complete sentences. It is not
// safe for concurrent use; the Dispatcher owns one instance.
type Parser struct {
	ownMMSI   uint32
	codec     *ais.Codec
	fragments map[int64]*fragmentSet
}

// NewParser builds a Parser that tags decoded messages whose MMSI matches
// ownMMSI as own-vessel.
func NewParser(ownMMSI uint32) *Parser {
	codec := ais.CodecNew(false, false)
	codec.DropSpace = true
	return &Parser{
		ownMMSI:   ownMMSI,
		codec:     codec,
		fragments: make(map[int64]*fragmentSet),
	}
}

// Parse feeds one raw line through the NMEA sentence parser. A malformed
// line yields (ParsedMessage{}, err); the caller treats this as a parser
// error (logged, fragment accumulator cleared, continue).
func (p *Parser) Parse(line string) (ParsedMessage, error) {
	sentence, err := nmea.Parse(line)
	if err != nil {
		return ParsedMessage{}, err
	}

	switch s := sentence.(type) {
	case nmea.RMC:
		return p.parseRMC(s), nil
	case nmea.VDMVDO:
		return p.parseVDMVDO(s), nil
	default:
		return ParsedMessage{Kind: KindUnsupported}, nil
	}
}

func (p *Parser) parseRMC(s nmea.RMC) ParsedMessage {
	msg := ParsedMessage{Kind: KindRmc}
	if s.Validity != "A" {
		return msg
	}
	lat, lon := s.Latitude, s.Longitude
	msg.Latitude = &lat
	msg.Longitude = &lon
	sog := s.Speed
	msg.SOGKnots = &sog
	course := s.Course
	msg.BearingDeg = &course

	if t, err := mergeDateTime(s.Date, s.Time); err == nil {
		msg.Timestamp = &t
	}
	return msg
}

// mergeDateTime combines an nmea.Date and nmea.Time into a UTC time.Time.
func mergeDateTime(d nmea.Date, t nmea.Time) (time.Time, error) {
	year := 1900 + d.YY
	if d.YY < 70 {
		year = 2000 + d.YY
	}
	return time.Date(year, time.Month(d.MM), d.DD, t.Hour, t.Minute, t.Second, t.Millisecond*1e6, time.UTC), nil
}

func (p *Parser) parseVDMVDO(s nmea.VDMVDO) ParsedMessage {
	payload := s.Payload
	if s.NumFragments > 1 {
		set, ok := p.fragments[s.MessageID]
		if !ok {
			set = &fragmentSet{parts: make(map[int64][]byte), numParts: s.NumFragments, seenAt: time.Now()}
			p.fragments[s.MessageID] = set
		}
		set.parts[s.FragmentNumber] = s.Payload

		if int64(len(set.parts)) < set.numParts {
			return ParsedMessage{Kind: KindIncomplete}
		}

		var complete []byte
		for i := int64(1); i <= set.numParts; i++ {
			part, ok := set.parts[i]
			if !ok {
				return ParsedMessage{Kind: KindIncomplete}
			}
			complete = append(complete, part...)
		}
		delete(p.fragments, s.MessageID)
		payload = complete
	}

	packet := p.codec.DecodePacket(payload)
	if packet == nil {
		return ParsedMessage{Kind: KindUnsupported}
	}
	return p.classifyPacket(packet)
}

func (p *Parser) classifyPacket(packet ais.Packet) ParsedMessage {
	switch msg := packet.(type) {
	case ais.PositionReport:
		return p.dynamicData(msg.UserID, float64(msg.Latitude), float64(msg.Longitude))
	case ais.StandardClassBPositionReport:
		return p.dynamicData(msg.UserID, float64(msg.Latitude), float64(msg.Longitude))
	case ais.ExtendedClassBPositionReport:
		return p.dynamicData(msg.UserID, float64(msg.Latitude), float64(msg.Longitude))
	case ais.ShipStaticData:
		return ParsedMessage{
			Kind:      KindVesselStaticData,
			MMSI:      msg.UserID,
			OwnVessel: msg.UserID == p.ownMMSI,
		}
	default:
		return ParsedMessage{Kind: KindUnsupported}
	}
}

func (p *Parser) dynamicData(mmsi uint32, lat, lon float64) ParsedMessage {
	return ParsedMessage{
		Kind:      KindVesselDynamicData,
		MMSI:      mmsi,
		OwnVessel: mmsi == p.ownMMSI,
		Latitude:  &lat,
		Longitude: &lon,
	}
}

// IsMoving reports whether two samples differ enough in lat or lon to count
// as motion: |Δlat| > 0.001 ∨ |Δlon| > 0.001 degrees. A nil prior sample
// (no baseline yet) is never "moving".
func IsMoving(lat, lon, prevLat, prevLon *float64) bool {
	if prevLat == nil || prevLon == nil || lat == nil || lon == nil {
		return false
	}
	return absDiff(*lat, *prevLat) > 0.001 || absDiff(*lon, *prevLon) > 0.001
}

func absDiff(a, b float64) float64 {
	d := a - b
	if d < 0 {
		return -d
	}
	return d
}
