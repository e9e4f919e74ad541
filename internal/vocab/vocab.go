// Package vocab defines the observation domains and the named fields each
// domain's acquisition subsystem reports.
package vocab

import (
	"fmt"
	"sort"
	"strings"
)

// Domain identifies the sensing subsystem an observation or rule belongs to.
type Domain string

const (
	// DomainWiFi covers wireless-LAN scan results (access points, probes, deauth frames).
	DomainWiFi Domain = "wifi"
	// DomainBluetooth covers short-range radio advertisements (BLE, classic).
	DomainBluetooth Domain = "bluetooth"
	// DomainCellular covers serving/neighbor cell state from the modem.
	DomainCellular Domain = "cellular"
	// DomainGNSS covers satellite-navigation measurements.
	DomainGNSS Domain = "gnss"
	// DomainSatellite covers non-terrestrial (direct-to-device) satellite links.
	DomainSatellite Domain = "satellite"
	// DomainRF covers generic sub-GHz / wideband radio-frequency captures.
	DomainRF Domain = "rf"
	// DomainUltrasonic covers near-ultrasound audio beacons.
	DomainUltrasonic Domain = "ultrasonic"
)

var allDomains = []Domain{
	DomainWiFi,
	DomainBluetooth,
	DomainCellular,
	DomainGNSS,
	DomainSatellite,
	DomainRF,
	DomainUltrasonic,
}

// AllDomains returns every observation domain in a stable order.
func AllDomains() []Domain {
	out := make([]Domain, len(allDomains))
	copy(out, allDomains)
	return out
}

// Valid reports whether d is one of the known domains.
func (d Domain) Valid() bool {
	for _, known := range allDomains {
		if d == known {
			return true
		}
	}
	return false
}

// ParseDomain resolves a domain name case-insensitively. A few long-form
// aliases are accepted so rule files can use descriptive names.
func ParseDomain(s string) (Domain, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	switch key {
	case "wlan", "wireless-lan", "wireless_lan":
		return DomainWiFi, nil
	case "ble", "short-range-radio", "short_range_radio":
		return DomainBluetooth, nil
	case "cell", "cell-network":
		return DomainCellular, nil
	case "gps", "satellite-navigation", "satellite_navigation":
		return DomainGNSS, nil
	case "ntn", "non-terrestrial-satellite", "non_terrestrial_satellite":
		return DomainSatellite, nil
	case "generic-rf", "generic_rf", "subghz":
		return DomainRF, nil
	case "audio":
		return DomainUltrasonic, nil
	}
	d := Domain(key)
	if !d.Valid() {
		return "", fmt.Errorf("unknown domain %q", s)
	}
	return d, nil
}

// FieldDef describes one named field reported for a domain.
type FieldDef struct {
	Domain           Domain  `json:"domain" yaml:"domain"`
	Name             string  `json:"name" yaml:"name"`
	Label            string  `json:"label" yaml:"label"`
	Unit             string  `json:"unit,omitempty" yaml:"unit,omitempty"`
	DefaultThreshold float64 `json:"default_threshold,omitempty" yaml:"default_threshold,omitempty"`
	// Literal marks identifier-like fields (names, addresses, ids) that literal
	// pattern rules are matched against.
	Literal bool `json:"literal" yaml:"literal"`
}

var registry = map[Domain][]FieldDef{}

func init() {
	for _, f := range builtinFields {
		registry[f.Domain] = append(registry[f.Domain], f)
	}
	for d := range registry {
		fields := registry[d]
		sort.SliceStable(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	}
}

// Fields returns the field definitions of a domain sorted by name.
func Fields(d Domain) []FieldDef {
	src := registry[d]
	out := make([]FieldDef, len(src))
	copy(out, src)
	return out
}

// Lookup returns the definition of a field within a domain.
func Lookup(d Domain, name string) (FieldDef, bool) {
	for _, f := range registry[d] {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// HasField reports whether name is a legal field for d.
func HasField(d Domain, name string) bool {
	_, ok := Lookup(d, name)
	return ok
}

// LiteralFields returns the names of the identifier-like fields of d.
func LiteralFields(d Domain) []string {
	var names []string
	for _, f := range registry[d] {
		if f.Literal {
			names = append(names, f.Name)
		}
	}
	return names
}
