package com0com

import (
	"bufio"
	"sort"
	"strconv"
	"strings"
)

// PortPair is one com0com pair. PortA and PortB are the names applications
// open; an unbound side is reported under its CNCA<n>/CNCB<n> device name.
type PortPair struct {
	PairID uint32 `json:"pair_id"`
	PortA  string `json:"port_a"`
	PortB  string `json:"port_b"`
}

const (
	prefixA = "CNCA"
	prefixB = "CNCB"

	// unbound is the value setupc prints, and accepts, for a side without a name.
	unbound = "-"
)

// ParseList parses the output of "setupc list". Each line starts with the
// CNCA<n> or CNCB<n> device, followed by key=value fields which may be
// separated by spaces or commas:
//
//	CNCA0 PortName=COM#,RealPortName=COM9
//	CNCB0 PortName=COM10 EmuBR=yes
//
// Only pairs whose both sides appear are returned, ordered by pair id.
func ParseList(output string) []PortPair {
	type halves struct {
		a, b         string
		haveA, haveB bool
	}
	seen := make(map[uint32]*halves)

	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		prefix := fields[0]
		id, sideA, ok := parsePrefix(prefix)
		if !ok {
			continue
		}
		name := visibleName(prefix, fields[1:])

		h := seen[id]
		if h == nil {
			h = &halves{}
			seen[id] = h
		}
		if sideA {
			h.a, h.haveA = name, true
		} else {
			h.b, h.haveB = name, true
		}
	}

	pairs := make([]PortPair, 0, len(seen))
	for id, h := range seen {
		if !h.haveA || !h.haveB {
			continue
		}
		pairs = append(pairs, PortPair{PairID: id, PortA: h.a, PortB: h.b})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].PairID < pairs[j].PairID })
	return pairs
}

// parsePrefix splits CNCA12 into (12, true).
func parsePrefix(prefix string) (uint32, bool, bool) {
	var sideA bool
	switch {
	case strings.HasPrefix(prefix, prefixA):
		sideA = true
	case strings.HasPrefix(prefix, prefixB):
	default:
		return 0, false, false
	}
	n, err := strconv.ParseUint(prefix[len(prefixA):], 10, 32)
	if err != nil {
		return 0, false, false
	}
	return uint32(n), sideA, true
}

// visibleName picks the name for one side. RealPortName wins over PortName
// and ends the scan of the line.
func visibleName(prefix string, tokens []string) string {
	name := prefix
	for _, tok := range tokens {
		for _, field := range strings.Split(tok, ",") {
			key, value, ok := strings.Cut(field, "=")
			if !ok {
				continue
			}
			switch key {
			case "PortName":
				if value == unbound {
					name = prefix
				} else {
					name = value
				}
			case "RealPortName":
				if value != unbound {
					return value
				}
			}
		}
	}
	return name
}
