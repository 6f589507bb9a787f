package decode

import (
	"reflect"
	"testing"

	telemetry "sensorfleet-cloud/internal/telemetry/domain"
)

func TestDecode_JSONObject(t *testing.T) {
	result := Decode(telemetry.ClassParking, `{"occupied":true}`)
	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", result.Warnings)
	}
	if occupied, ok := result.Decoded["occupied"].(bool); !ok || !occupied {
		t.Fatalf("expected occupied=true, got %v", result.Decoded)
	}
}

func TestDecode_JSONArray(t *testing.T) {
	result := Decode(telemetry.ClassWeather, `[1, 2, 3]`)
	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", result.Warnings)
	}
	if _, ok := result.Decoded["values"]; !ok {
		t.Fatalf("expected values key, got %v", result.Decoded)
	}
}

func TestDecode_MalformedJSONFallsThrough(t *testing.T) {
	// Starts with a brace but does not parse; the even-length hex rule does
	// not match either, so it lands on the raw fallback.
	result := Decode(telemetry.ClassParking, `{broken`)
	if result.Decoded["raw"] != `{broken` {
		t.Fatalf("expected raw fallback, got %v", result.Decoded)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %v", result.Warnings)
	}
}

func TestDecode_ParkingHex(t *testing.T) {
	result := Decode(telemetry.ClassParking, "0155")
	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", result.Warnings)
	}
	if occupied, _ := result.Decoded["occupied"].(bool); !occupied {
		t.Fatalf("expected occupied=true, got %v", result.Decoded)
	}
	if battery, _ := result.Decoded["batteryPct"].(int); battery != 85 {
		t.Fatalf("expected batteryPct=85, got %v", result.Decoded["batteryPct"])
	}
}

func TestDecode_ParkingHexBatteryOutOfRange(t *testing.T) {
	result := Decode(telemetry.ClassParking, "01C8")
	if battery, _ := result.Decoded["batteryPct"].(int); battery != 200 {
		t.Fatalf("expected batteryPct=200, got %v", result.Decoded["batteryPct"])
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected battery warning, got %v", result.Warnings)
	}
}

func TestDecode_ParkingHexOccupancyOnly(t *testing.T) {
	result := Decode(telemetry.ClassTemperature, "00")
	if occupied, _ := result.Decoded["occupied"].(bool); occupied {
		t.Fatalf("expected occupied=false, got %v", result.Decoded)
	}
	if _, ok := result.Decoded["batteryPct"]; ok {
		t.Fatalf("expected no battery field, got %v", result.Decoded)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", result.Warnings)
	}
}

func TestDecode_WeatherHexPlaceholder(t *testing.T) {
	result := Decode(telemetry.ClassWeather, "0a0b")
	if len(result.Warnings) != 1 {
		t.Fatalf("expected placeholder warning, got %v", result.Warnings)
	}
	bytes, ok := result.Decoded["bytes"].([]any)
	if !ok || len(bytes) != 2 {
		t.Fatalf("expected two raw bytes, got %v", result.Decoded)
	}
}

func TestDecode_OtherClassHex(t *testing.T) {
	result := Decode(telemetry.ClassOther, "ff")
	if len(result.Warnings) != 1 {
		t.Fatalf("expected raw-bytes warning, got %v", result.Warnings)
	}
	if _, ok := result.Decoded["bytes"]; !ok {
		t.Fatalf("expected bytes key, got %v", result.Decoded)
	}
}

func TestDecode_Unrecognized(t *testing.T) {
	result := Decode(telemetry.ClassParking, "not json or hex!")
	if result.Decoded["raw"] != "not json or hex!" {
		t.Fatalf("expected raw passthrough, got %v", result.Decoded)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %v", result.Warnings)
	}
}

func TestDecode_OddLengthHexIsUnrecognized(t *testing.T) {
	result := Decode(telemetry.ClassParking, "015")
	if result.Decoded["raw"] != "015" {
		t.Fatalf("expected raw passthrough for odd-length hex, got %v", result.Decoded)
	}
}

func TestDecode_Deterministic(t *testing.T) {
	payloads := []string{`{"occupied":true}`, "0155", "01C8", "not json or hex!", "", "[1,2]"}
	classes := []telemetry.SensorClass{
		telemetry.ClassParking, telemetry.ClassTemperature,
		telemetry.ClassWeather, telemetry.ClassOther,
	}
	for _, class := range classes {
		for _, payload := range payloads {
			first := Decode(class, payload)
			second := Decode(class, payload)
			if !reflect.DeepEqual(first, second) {
				t.Fatalf("decode not deterministic for class=%s payload=%q", class, payload)
			}
		}
	}
}
