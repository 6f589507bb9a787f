// Package decode turns raw device payloads into structured readings. Decoding
// is pure and deterministic and never fails hard: every uncertainty is
// reported as a warning alongside a best-effort result.
package decode

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	telemetry "sensorfleet-cloud/internal/telemetry/domain"
)

// Result is a best-effort decode outcome.
type Result struct {
	Decoded  map[string]any
	Warnings []string
}

// Decode interprets a raw payload according to the declared sensor class.
// Priority: JSON-shaped payloads are parsed verbatim, even-length hex strings
// get a class-specific byte mapping, anything else is kept raw.
func Decode(class telemetry.SensorClass, raw string) Result {
	trimmed := strings.TrimSpace(raw)

	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if result, ok := decodeJSON(trimmed); ok {
			return result
		}
		// Shape said JSON but parsing failed; fall through to the next rule.
	}

	if isHex(trimmed) {
		return decodeHex(class, trimmed)
	}

	return Result{
		Decoded:  map[string]any{"raw": raw},
		Warnings: []string{"unrecognized payload format"},
	}
}

func decodeJSON(trimmed string) (Result, bool) {
	if strings.HasPrefix(trimmed, "{") {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
			return Result{}, false
		}
		return Result{Decoded: decoded}, true
	}
	var values []any
	if err := json.Unmarshal([]byte(trimmed), &values); err != nil {
		return Result{}, false
	}
	return Result{Decoded: map[string]any{"values": values}}, true
}

func decodeHex(class telemetry.SensorClass, trimmed string) Result {
	data, err := hex.DecodeString(trimmed)
	if err != nil {
		// isHex already vetted the string; keep the raw fallback anyway.
		return Result{
			Decoded:  map[string]any{"raw": trimmed},
			Warnings: []string{"unrecognized payload format"},
		}
	}

	switch class {
	case telemetry.ClassParking, telemetry.ClassTemperature:
		return decodeParkingBytes(data)
	case telemetry.ClassWeather:
		return Result{
			Decoded:  map[string]any{"bytes": byteValues(data)},
			Warnings: []string{"weather decoder is a placeholder; raw bytes only"},
		}
	default:
		return Result{
			Decoded:  map[string]any{"bytes": byteValues(data)},
			Warnings: []string{fmt.Sprintf("no decoder for class %s; raw bytes only", class)},
		}
	}
}

// decodeParkingBytes maps the hex-compatible occupancy frame: byte 0 is the
// occupancy flag, byte 1 (optional) the battery percentage.
func decodeParkingBytes(data []byte) Result {
	result := Result{Decoded: map[string]any{}}
	if len(data) == 0 {
		result.Decoded["raw"] = ""
		result.Warnings = append(result.Warnings, "empty payload")
		return result
	}
	result.Decoded["occupied"] = data[0] != 0
	if len(data) > 1 {
		battery := int(data[1])
		result.Decoded["batteryPct"] = battery
		if battery > 100 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("battery percent out of range: %d", battery))
		}
	}
	return result
}

func byteValues(data []byte) []any {
	values := make([]any, len(data))
	for i, b := range data {
		values[i] = int(b)
	}
	return values
}

func isHex(s string) bool {
	if len(s) == 0 || len(s)%2 != 0 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
