// Package catalog holds the built-in literal patterns for known surveillance
// hardware, grouped into categories that are switched on and off as a unit.
package catalog

import (
	"sort"

	"flock-sentinel/internal/rules"
	"flock-sentinel/internal/vocab"
)

// Category names.
const (
	CategoryFlockALPR         = "flock-alpr"
	CategoryRavenAcoustic     = "raven-acoustic"
	CategoryShotSpotter       = "shotspotter"
	CategoryPoliceBodyCam     = "police-bodycam"
	CategoryPoliceRadio       = "police-radio"
	CategoryCellSiteSimulator = "cell-site-simulator"
	CategoryTrackingBeacons   = "tracking-beacons"
	CategorySatelliteTracking = "satellite-tracking"
	CategoryUltrasonicBeacons = "ultrasonic-beacons"
)

// Category is a named group of built-in rules with one enable toggle.
type Category struct {
	Name             string         `json:"name" yaml:"name"`
	Description      string         `json:"description" yaml:"description"`
	Domains          []vocab.Domain `json:"domains" yaml:"domains"`
	EnabledByDefault bool           `json:"enabled_by_default" yaml:"enabled_by_default"`
}

var categories = []Category{
	{
		Name:             CategoryFlockALPR,
		Description:      "Flock Safety license plate reader cameras and their uplink radios",
		Domains:          []vocab.Domain{vocab.DomainWiFi, vocab.DomainBluetooth},
		EnabledByDefault: true,
	},
	{
		Name:             CategoryRavenAcoustic,
		Description:      "Raven gunshot / acoustic sensors",
		Domains:          []vocab.Domain{vocab.DomainBluetooth},
		EnabledByDefault: true,
	},
	{
		Name:             CategoryShotSpotter,
		Description:      "ShotSpotter / SoundThinking acoustic sensor nodes",
		Domains:          []vocab.Domain{vocab.DomainWiFi, vocab.DomainBluetooth},
		EnabledByDefault: true,
	},
	{
		Name:             CategoryPoliceBodyCam,
		Description:      "Body-worn and in-car police cameras",
		Domains:          []vocab.Domain{vocab.DomainWiFi, vocab.DomainBluetooth},
		EnabledByDefault: true,
	},
	{
		Name:             CategoryPoliceRadio,
		Description:      "Public-safety trunked radio and radio accessories",
		Domains:          []vocab.Domain{vocab.DomainRF, vocab.DomainBluetooth},
		EnabledByDefault: true,
	},
	{
		Name:             CategoryCellSiteSimulator,
		Description:      "IMSI catchers and other fake base stations",
		Domains:          []vocab.Domain{vocab.DomainCellular},
		EnabledByDefault: true,
	},
	{
		Name:             CategoryTrackingBeacons,
		Description:      "Consumer item trackers that can be planted on a person or vehicle",
		Domains:          []vocab.Domain{vocab.DomainBluetooth},
		EnabledByDefault: true,
	},
	{
		Name:             CategorySatelliteTracking,
		Description:      "Satellite-linked asset trackers and unexpected satellite attachment",
		Domains:          []vocab.Domain{vocab.DomainSatellite, vocab.DomainRF},
		EnabledByDefault: true,
	},
	{
		Name:             CategoryUltrasonicBeacons,
		Description:      "Near-ultrasound cross-device tracking beacons",
		Domains:          []vocab.Domain{vocab.DomainUltrasonic},
		EnabledByDefault: false,
	},
}

// Categories returns every built-in category sorted by name.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LookupCategory returns a category by name.
func LookupCategory(name string) (Category, bool) {
	for _, c := range categories {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// DefaultCategoryState returns the initial enable state of every category.
func DefaultCategoryState() map[string]bool {
	state := make(map[string]bool, len(categories))
	for _, c := range categories {
		state[c.Name] = c.EnabledByDefault
	}
	return state
}

// Builtin returns a fresh copy of every built-in literal rule.
func Builtin() []rules.LiteralRule {
	out := make([]rules.LiteralRule, 0, len(builtinRules))
	for _, r := range builtinRules {
		r.Source = rules.SourceBuiltin
		r.Enabled = true
		out = append(out, r)
	}
	return out
}

// ByCategory returns the built-in rules of one category.
func ByCategory(name string) []rules.LiteralRule {
	var out []rules.LiteralRule
	for _, r := range Builtin() {
		if r.Category == name {
			out = append(out, r)
		}
	}
	return out
}
