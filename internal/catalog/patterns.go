package catalog

import (
	"flock-sentinel/internal/matcher"
	"flock-sentinel/internal/rules"
	"flock-sentinel/internal/vocab"
)

var builtinRules = []rules.LiteralRule{
	// Flock Safety ALPR
	{
		ID: "builtin-flock-ssid", Name: "Flock camera hotspot",
		Description: "Access point named like a Flock Safety camera uplink",
		Domain:      vocab.DomainWiFi, Kind: matcher.KindRegex, Pattern: `(?i)^flock[-_ ]?`, Field: "ssid",
		Classification: "ALPR camera", ThreatScore: 80, Manufacturer: "Flock Safety",
		Category: CategoryFlockALPR, Specific: true,
	},
	{
		ID: "builtin-flock-ssid-generic", Name: "Possible Flock hotspot",
		Description: "Network name mentions Flock or its camera product line",
		Domain:      vocab.DomainWiFi, Kind: matcher.KindRegex, Pattern: `(?i)(flock|falcon|sparrow|pigvision)`, Field: "ssid",
		Classification: "ALPR camera", ThreatScore: 55, Manufacturer: "Flock Safety",
		Category: CategoryFlockALPR,
	},
	{
		ID: "builtin-flock-oui-1", Name: "Flock camera radio (OUI 58:8E:81)",
		Domain: vocab.DomainWiFi, Kind: matcher.KindPrefix, Pattern: "58:8E:81", Field: "bssid",
		Classification: "ALPR camera", ThreatScore: 85, Manufacturer: "Flock Safety",
		Category: CategoryFlockALPR, Specific: true,
	},
	{
		ID: "builtin-flock-oui-2", Name: "Flock camera radio (OUI EC:1B:BD)",
		Domain: vocab.DomainWiFi, Kind: matcher.KindPrefix, Pattern: "EC:1B:BD", Field: "bssid",
		Classification: "ALPR camera", ThreatScore: 85, Manufacturer: "Flock Safety",
		Category: CategoryFlockALPR, Specific: true,
	},
	{
		ID: "builtin-flock-oui-3", Name: "Flock camera radio (OUI 90:35:EA)",
		Domain: vocab.DomainWiFi, Kind: matcher.KindPrefix, Pattern: "90:35:EA", Field: "bssid",
		Classification: "ALPR camera", ThreatScore: 85, Manufacturer: "Flock Safety",
		Category: CategoryFlockALPR, Specific: true,
	},
	{
		ID: "builtin-flock-ble-name", Name: "Flock camera BLE beacon",
		Domain: vocab.DomainBluetooth, Kind: matcher.KindRegex, Pattern: `(?i)^(flock|penguin|pigvision|fs ext battery)`, Field: "name",
		Classification: "ALPR camera", ThreatScore: 80, Manufacturer: "Flock Safety",
		Category: CategoryFlockALPR, Specific: true,
	},
	{
		ID: "builtin-flock-ble-oui", Name: "Flock battery pack (OUI 58:8E:81)",
		Domain: vocab.DomainBluetooth, Kind: matcher.KindPrefix, Pattern: "58:8E:81", Field: "mac",
		Classification: "ALPR camera", ThreatScore: 80, Manufacturer: "Flock Safety",
		Category: CategoryFlockALPR, Specific: true,
	},

	// Raven acoustic sensors
	{
		ID: "builtin-raven-name", Name: "Raven acoustic sensor",
		Domain: vocab.DomainBluetooth, Kind: matcher.KindRegex, Pattern: `(?i)\braven\b`, Field: "name",
		Classification: "Gunshot detector", ThreatScore: 75, Manufacturer: "Flock Safety",
		Category: CategoryRavenAcoustic,
	},
	{
		ID: "builtin-raven-service", Name: "Raven sensor service UUID",
		Description: "Custom GATT services exposed by Raven firmware (health, location, power, upload, diagnostics)",
		Domain:      vocab.DomainBluetooth, Kind: matcher.KindRegex,
		Pattern: `(?i)^0000(31|32|33|34|35)00-0000-1000-8000-00805f9b34fb$`, Field: "service_uuid",
		Classification: "Gunshot detector", ThreatScore: 90, Manufacturer: "Flock Safety",
		Category: CategoryRavenAcoustic, Specific: true,
	},

	// ShotSpotter
	{
		ID: "builtin-shotspotter-ssid", Name: "ShotSpotter node hotspot",
		Domain: vocab.DomainWiFi, Kind: matcher.KindRegex, Pattern: `(?i)(shotspotter|soundthinking)`, Field: "ssid",
		Classification: "Gunshot detector", ThreatScore: 75, Manufacturer: "SoundThinking",
		Category: CategoryShotSpotter, Specific: true,
	},
	{
		ID: "builtin-shotspotter-ble", Name: "ShotSpotter node beacon",
		Domain: vocab.DomainBluetooth, Kind: matcher.KindRegex, Pattern: `(?i)(shotspotter|soundthinking|sst-)`, Field: "name",
		Classification: "Gunshot detector", ThreatScore: 70, Manufacturer: "SoundThinking",
		Category: CategoryShotSpotter,
	},

	// Body-worn / in-car cameras
	{
		ID: "builtin-axon-oui", Name: "Axon device (OUI 00:25:DF)",
		Domain: vocab.DomainBluetooth, Kind: matcher.KindPrefix, Pattern: "00:25:DF", Field: "mac",
		Classification: "Police body camera", ThreatScore: 80, Manufacturer: "Axon",
		Category: CategoryPoliceBodyCam, Specific: true,
	},
	{
		ID: "builtin-axon-name", Name: "Axon camera beacon",
		Domain: vocab.DomainBluetooth, Kind: matcher.KindRegex, Pattern: `(?i)^axon\s*(body|flex|fleet|signal)?`, Field: "name",
		Classification: "Police body camera", ThreatScore: 75, Manufacturer: "Axon",
		Category: CategoryPoliceBodyCam, Specific: true,
	},
	{
		ID: "builtin-bodycam-ssid", Name: "In-car video hotspot",
		Domain: vocab.DomainWiFi, Kind: matcher.KindRegex, Pattern: `(?i)(axon|watchguard|getac|coban|l3 ?mobile[- ]?vision|body ?cam)`, Field: "ssid",
		Classification: "Police vehicle camera", ThreatScore: 65,
		Category: CategoryPoliceBodyCam,
	},

	// Public-safety radio
	{
		ID: "builtin-p25-protocol", Name: "P25 trunked radio traffic",
		Domain: vocab.DomainRF, Kind: matcher.KindToken, Pattern: "P25", Field: "protocol",
		Classification: "Police radio", ThreatScore: 40,
		Category: CategoryPoliceRadio,
	},
	{
		ID: "builtin-800-public-safety", Name: "800 MHz public-safety band",
		Domain: vocab.DomainRF, Kind: matcher.KindRange, Pattern: "851-869", Field: "frequency_mhz",
		Classification: "Police radio", ThreatScore: 30,
		Category: CategoryPoliceRadio,
	},
	{
		ID: "builtin-motorola-accessory", Name: "Motorola radio accessory",
		Domain: vocab.DomainBluetooth, Kind: matcher.KindRegex, Pattern: `(?i)^(apx|motorola (apx|si\d)|wireless rsm)`, Field: "name",
		Classification: "Police radio", ThreatScore: 60, Manufacturer: "Motorola Solutions",
		Category: CategoryPoliceRadio, Specific: true,
	},

	// Cell-site simulators
	{
		ID: "builtin-csm-test-mcc", Name: "Test network country code",
		Description: "MCC 001 is reserved for test networks and should never appear in the field",
		Domain:      vocab.DomainCellular, Kind: matcher.KindToken, Pattern: "001", Field: "mcc",
		Classification: "Cell-site simulator", ThreatScore: 95,
		Category: CategoryCellSiteSimulator, Specific: true,
	},
	{
		ID: "builtin-csm-reserved-mcc", Name: "Reserved network country code",
		Domain: vocab.DomainCellular, Kind: matcher.KindRange, Pattern: "900-999", Field: "mcc",
		Classification: "Cell-site simulator", ThreatScore: 70,
		Category: CategoryCellSiteSimulator,
	},
	{
		ID: "builtin-csm-operator", Name: "Suspicious operator name",
		Domain: vocab.DomainCellular, Kind: matcher.KindRegex, Pattern: `(?i)^(test|testing|unknown|null|n/a|openbts|osmo|yate|srs)`, Field: "operator",
		Classification: "Cell-site simulator", ThreatScore: 80,
		Category: CategoryCellSiteSimulator,
	},

	// Item trackers
	{
		ID: "builtin-tracker-type", Name: "Known item tracker",
		Domain: vocab.DomainBluetooth, Kind: matcher.KindRegex, Pattern: `(?i)^(airtag|findmy|tile|smarttag|chipolo)$`, Field: "tracker_type",
		Classification: "Tracking beacon", ThreatScore: 60,
		Category: CategoryTrackingBeacons, Specific: true,
	},
	{
		ID: "builtin-tile-service", Name: "Tile tracker service",
		Domain: vocab.DomainBluetooth, Kind: matcher.KindRegex, Pattern: `(?i)^0000fee[cd]-`, Field: "service_uuid",
		Classification: "Tracking beacon", ThreatScore: 55, Manufacturer: "Tile",
		Category: CategoryTrackingBeacons, Specific: true,
	},
	{
		ID: "builtin-smarttag-service", Name: "Samsung SmartTag service",
		Domain: vocab.DomainBluetooth, Kind: matcher.KindRegex, Pattern: `(?i)^0000fd5a-`, Field: "service_uuid",
		Classification: "Tracking beacon", ThreatScore: 55, Manufacturer: "Samsung",
		Category: CategoryTrackingBeacons, Specific: true,
	},
	{
		ID: "builtin-chipolo-service", Name: "Chipolo tracker service",
		Domain: vocab.DomainBluetooth, Kind: matcher.KindRegex, Pattern: `(?i)^0000fe33-`, Field: "service_uuid",
		Classification: "Tracking beacon", ThreatScore: 55, Manufacturer: "Chipolo",
		Category: CategoryTrackingBeacons, Specific: true,
	},
	{
		ID: "builtin-apple-manufacturer", Name: "Apple Find My capable device",
		Domain: vocab.DomainBluetooth, Kind: matcher.KindToken, Pattern: "0x004C", Field: "manufacturer_id",
		Classification: "Tracking beacon", ThreatScore: 20, Manufacturer: "Apple",
		Category: CategoryTrackingBeacons,
	},

	// Satellite-linked tracking
	{
		ID: "builtin-sat-asset-tracker", Name: "Satellite asset tracker",
		Domain: vocab.DomainSatellite, Kind: matcher.KindRegex, Pattern: `(?i)(globalstar|spot trace|smartone|iridium sbd|orbcomm)`, Field: "provider",
		Classification: "Satellite tracker", ThreatScore: 65,
		Category: CategorySatelliteTracking, Specific: true,
	},
	{
		ID: "builtin-sat-l-band", Name: "L-band satellite uplink",
		Domain: vocab.DomainRF, Kind: matcher.KindRange, Pattern: "1610-1626.5", Field: "frequency_mhz",
		Classification: "Satellite tracker", ThreatScore: 45,
		Category: CategorySatelliteTracking,
	},

	// Ultrasonic beacons
	{
		ID: "builtin-ultrasonic-band", Name: "Near-ultrasound beacon band",
		Domain: vocab.DomainUltrasonic, Kind: matcher.KindRange, Pattern: "18000-20000", Field: "peak_frequency_hz",
		Classification: "Ultrasonic beacon", ThreatScore: 35,
		Category: CategoryUltrasonicBeacons,
	},
	{
		ID: "builtin-ultrasonic-vendor", Name: "Known ultrasonic beacon vendor",
		Domain: vocab.DomainUltrasonic, Kind: matcher.KindRegex, Pattern: `(?i)^(silverpush|lisnr|shopkick|signal360)`, Field: "beacon_id",
		Classification: "Ultrasonic beacon", ThreatScore: 60,
		Category: CategoryUltrasonicBeacons, Specific: true,
	},
}
