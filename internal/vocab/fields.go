package vocab

// builtinFields is the static field registry. Thresholds are the defaults the
// rule editor pre-fills; the WiFi values follow the WIPS detector defaults.
var builtinFields = []FieldDef{
	// Wireless LAN
	{Domain: DomainWiFi, Name: "ssid", Label: "Network name", Literal: true},
	{Domain: DomainWiFi, Name: "bssid", Label: "Access point address", Literal: true},
	{Domain: DomainWiFi, Name: "vendor", Label: "Vendor", Literal: true},
	{Domain: DomainWiFi, Name: "frequency_mhz", Label: "Frequency", Unit: "MHz", Literal: true},
	{Domain: DomainWiFi, Name: "rssi", Label: "Signal strength", Unit: "dBm", DefaultThreshold: -55},
	{Domain: DomainWiFi, Name: "channel", Label: "Channel"},
	{Domain: DomainWiFi, Name: "encryption", Label: "Encryption"},
	{Domain: DomainWiFi, Name: "hidden", Label: "Hidden network"},
	{Domain: DomainWiFi, Name: "deauth_count", Label: "Deauth frames in window", Unit: "frames", DefaultThreshold: 10},
	{Domain: DomainWiFi, Name: "deauth_window_ms", Label: "Deauth window", Unit: "ms", DefaultThreshold: 5000},
	{Domain: DomainWiFi, Name: "bssids_for_ssid", Label: "Access points sharing name", Unit: "count", DefaultThreshold: 2},
	{Domain: DomainWiFi, Name: "probe_ssids_answered", Label: "Distinct probes answered", Unit: "count", DefaultThreshold: 3},
	{Domain: DomainWiFi, Name: "seen_count", Label: "Times seen", Unit: "count", DefaultThreshold: 3},

	// Short-range radio
	{Domain: DomainBluetooth, Name: "name", Label: "Device name", Literal: true},
	{Domain: DomainBluetooth, Name: "mac", Label: "Device address", Literal: true},
	{Domain: DomainBluetooth, Name: "manufacturer_id", Label: "Manufacturer id", Literal: true},
	{Domain: DomainBluetooth, Name: "service_uuid", Label: "Service UUID", Literal: true},
	{Domain: DomainBluetooth, Name: "tracker_type", Label: "Tracker type", Literal: true},
	{Domain: DomainBluetooth, Name: "rssi", Label: "Signal strength", Unit: "dBm", DefaultThreshold: -70},
	{Domain: DomainBluetooth, Name: "tx_power", Label: "Advertised TX power", Unit: "dBm"},
	{Domain: DomainBluetooth, Name: "connectable", Label: "Connectable"},
	{Domain: DomainBluetooth, Name: "address_randomized", Label: "Random address"},
	{Domain: DomainBluetooth, Name: "seen_locations", Label: "Distinct locations seen", Unit: "count", DefaultThreshold: 3},
	{Domain: DomainBluetooth, Name: "seen_duration_s", Label: "Time in range", Unit: "s", DefaultThreshold: 600},
	{Domain: DomainBluetooth, Name: "adv_rate", Label: "Advertisement rate", Unit: "adv/s", DefaultThreshold: 20},

	// Cellular
	{Domain: DomainCellular, Name: "cell_id", Label: "Cell id", Literal: true},
	{Domain: DomainCellular, Name: "mcc", Label: "Mobile country code", Literal: true},
	{Domain: DomainCellular, Name: "mnc", Label: "Mobile network code", Literal: true},
	{Domain: DomainCellular, Name: "tac", Label: "Tracking area code", Literal: true},
	{Domain: DomainCellular, Name: "operator", Label: "Operator name", Literal: true},
	{Domain: DomainCellular, Name: "earfcn", Label: "Channel number", Literal: true},
	{Domain: DomainCellular, Name: "network_type", Label: "Radio technology"},
	{Domain: DomainCellular, Name: "signal_strength", Label: "Signal level", Unit: "%", DefaultThreshold: 80},
	{Domain: DomainCellular, Name: "cell_id_changed", Label: "Cell id changed"},
	{Domain: DomainCellular, Name: "tac_changed", Label: "Tracking area changed"},
	{Domain: DomainCellular, Name: "downgraded", Label: "Forced technology downgrade"},
	{Domain: DomainCellular, Name: "cipher", Label: "Ciphering algorithm"},
	{Domain: DomainCellular, Name: "neighbor_count", Label: "Neighbor cells", Unit: "count", DefaultThreshold: 1},
	{Domain: DomainCellular, Name: "timing_advance", Label: "Timing advance"},

	// Satellite navigation
	{Domain: DomainGNSS, Name: "constellation", Label: "Constellation", Literal: true},
	{Domain: DomainGNSS, Name: "svid", Label: "Satellite id", Literal: true},
	{Domain: DomainGNSS, Name: "satellite_count", Label: "Satellites used", Unit: "count", DefaultThreshold: 4},
	{Domain: DomainGNSS, Name: "avg_cn0", Label: "Mean carrier-to-noise", Unit: "dB-Hz", DefaultThreshold: 45},
	{Domain: DomainGNSS, Name: "cn0_stddev", Label: "Carrier-to-noise spread", Unit: "dB-Hz", DefaultThreshold: 2},
	{Domain: DomainGNSS, Name: "agc_level", Label: "AGC level", Unit: "dB"},
	{Domain: DomainGNSS, Name: "jamming_indicator", Label: "Jamming indicator", Unit: "%", DefaultThreshold: 50},
	{Domain: DomainGNSS, Name: "position_jump_m", Label: "Position jump", Unit: "m", DefaultThreshold: 500},
	{Domain: DomainGNSS, Name: "clock_drift_ns", Label: "Clock drift", Unit: "ns", DefaultThreshold: 1000},
	{Domain: DomainGNSS, Name: "ephemeris_mismatch", Label: "Ephemeris mismatch"},

	// Non-terrestrial satellite
	{Domain: DomainSatellite, Name: "provider", Label: "Provider", Literal: true},
	{Domain: DomainSatellite, Name: "network_name", Label: "Network name", Literal: true},
	{Domain: DomainSatellite, Name: "terminal_id", Label: "Terminal id", Literal: true},
	{Domain: DomainSatellite, Name: "signal_strength", Label: "Signal level", Unit: "dBm"},
	{Domain: DomainSatellite, Name: "elevation_deg", Label: "Elevation", Unit: "deg", DefaultThreshold: 10},
	{Domain: DomainSatellite, Name: "doppler_hz", Label: "Doppler shift", Unit: "Hz"},
	{Domain: DomainSatellite, Name: "unexpected_handoff", Label: "Unexpected handoff to satellite"},

	// Generic RF
	{Domain: DomainRF, Name: "frequency_mhz", Label: "Frequency", Unit: "MHz", Literal: true},
	{Domain: DomainRF, Name: "protocol", Label: "Decoded protocol", Literal: true},
	{Domain: DomainRF, Name: "modulation", Label: "Modulation", Literal: true},
	{Domain: DomainRF, Name: "device_id", Label: "Device id", Literal: true},
	{Domain: DomainRF, Name: "rssi", Label: "Signal strength", Unit: "dBm", DefaultThreshold: -60},
	{Domain: DomainRF, Name: "burst_rate", Label: "Bursts per minute", Unit: "1/min", DefaultThreshold: 30},
	{Domain: DomainRF, Name: "duty_cycle", Label: "Duty cycle", Unit: "%", DefaultThreshold: 50},

	// Ultrasonic
	{Domain: DomainUltrasonic, Name: "peak_frequency_hz", Label: "Peak frequency", Unit: "Hz", Literal: true},
	{Domain: DomainUltrasonic, Name: "beacon_id", Label: "Beacon id", Literal: true},
	{Domain: DomainUltrasonic, Name: "source_type", Label: "Source type", Literal: true},
	{Domain: DomainUltrasonic, Name: "amplitude_db", Label: "Amplitude", Unit: "dB", DefaultThreshold: -40},
	{Domain: DomainUltrasonic, Name: "persistence_s", Label: "Persistence", Unit: "s", DefaultThreshold: 30},
	{Domain: DomainUltrasonic, Name: "snr_db", Label: "Signal-to-noise", Unit: "dB", DefaultThreshold: 10},
}
