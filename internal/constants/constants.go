// Package constants provides centralized domain-specific constants
// for the entire meshdb module.
//
// This file consolidates the portnum table and the reserved metric
// names shared between the packet classifier and the query layer.
package constants

// =============================================================================
// Port numbers - decoded.portnum values that drive classification
// =============================================================================

// Meshtastic application port numbers. The decoded payload carries either
// the symbolic name or the raw integer depending on the decoder version.
const (
	PortNodeInfo    = 4
	PortPosition    = 3
	PortTelemetry   = 67
	PortTextMessage = 1
)

// Symbolic portnum names emitted by common decoders.
const (
	PortNameNodeInfo    = "NODEINFO_APP"
	PortNamePosition    = "POSITION_APP"
	PortNameTelemetry   = "TELEMETRY_APP"
	PortNameTextMessage = "TEXT_MESSAGE_APP"
)

// =============================================================================
// Reserved metric names
// =============================================================================

// Reserved metric names for the device metrics group.
const (
	MetricBatteryLevel       = "battery_level"
	MetricVoltage            = "voltage"
	MetricChannelUtilization = "channel_utilization"
	MetricAirUtilTx          = "air_util_tx"
	MetricUptimeSeconds      = "uptime_seconds"
)

// Reserved metric names for the environment metrics group.
const (
	MetricTemperature        = "temperature"
	MetricRelativeHumidity   = "relative_humidity"
	MetricBarometricPressure = "barometric_pressure"
	MetricGasResistance      = "gas_resistance"
	MetricIAQ                = "iaq"
	MetricLux                = "lux"
	MetricWindDirection      = "wind_direction"
	MetricWindSpeed          = "wind_speed"
	MetricRadiation          = "radiation"
	MetricSoilMoisture       = "soil_moisture"
	MetricSoilTemperature    = "soil_temperature"
)

// Reserved metric names synthesized from position packets.
const (
	MetricLatitude  = "latitude"
	MetricLongitude = "longitude"
	MetricAltitude  = "altitude"
)

// ReservedMetrics contains every reserved metric name. The classifier
// validates reserved keys against this table to catch typos; names outside
// the table are still accepted since the metric set is open.
var ReservedMetrics = map[string]bool{
	MetricBatteryLevel:       true,
	MetricVoltage:            true,
	MetricChannelUtilization: true,
	MetricAirUtilTx:          true,
	MetricUptimeSeconds:      true,
	MetricTemperature:        true,
	MetricRelativeHumidity:   true,
	MetricBarometricPressure: true,
	MetricGasResistance:      true,
	MetricIAQ:                true,
	MetricLux:                true,
	MetricWindDirection:      true,
	MetricWindSpeed:          true,
	MetricRadiation:          true,
	MetricSoilMoisture:       true,
	MetricSoilTemperature:    true,
	MetricLatitude:           true,
	MetricLongitude:          true,
	MetricAltitude:           true,
}

// IsReservedMetric checks if a metric name is in the reserved table.
func IsReservedMetric(name string) bool {
	return ReservedMetrics[name]
}
