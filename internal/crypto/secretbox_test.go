package crypto

import (
	"encoding/json"
	"testing"
)

func testKey() [32]byte {
	key := [32]byte{}
	for i := 0; i < 32; i++ {
		key[i] = byte(i)
	}
	return key
}

func TestSealOpenRoundtrip(t *testing.T) {
	key := testKey()

	testData := map[string]interface{}{
		"message": "Hello, World!",
		"count":   42,
	}

	sealed, err := Seal(testData, &key)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	// At least nonce (24) plus auth tag (16).
	if len(sealed) < 24+16 {
		t.Fatalf("Sealed data too short: %d bytes", len(sealed))
	}

	var opened map[string]interface{}
	if err := Open(sealed, &key, &opened); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if opened["message"] != "Hello, World!" {
		t.Errorf("Message mismatch: got %v", opened["message"])
	}
	if opened["count"] != float64(42) { // JSON numbers are float64
		t.Errorf("Count mismatch: got %v", opened["count"])
	}
}

func TestSealRawBytes(t *testing.T) {
	key := testKey()

	sealed, err := Seal(json.RawMessage(`{"raw":true}`), &key)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	var raw json.RawMessage
	if err := Open(sealed, &key, &raw); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if string(raw) != `{"raw":true}` {
		t.Errorf("Raw payload mismatch: got %s", raw)
	}
}

func TestOpenWrongKey(t *testing.T) {
	correctKey := testKey()
	wrongKey := [32]byte{}
	for i := 0; i < 32; i++ {
		wrongKey[i] = byte(i + 1)
	}

	sealed, err := Seal(map[string]string{"test": "data"}, &correctKey)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	var opened map[string]string
	if err := Open(sealed, &wrongKey, &opened); err == nil {
		t.Error("Open should have failed with wrong key")
	}
}

func TestOpenTooShort(t *testing.T) {
	key := testKey()
	short := make([]byte, 20) // less than the 24-byte nonce

	var opened interface{}
	if err := Open(short, &key, &opened); err == nil {
		t.Error("Open should have failed with short data")
	}
}

func TestOpenCorruptedData(t *testing.T) {
	key := testKey()

	sealed, err := Seal(map[string]string{"test": "data"}, &key)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	sealed[30] ^= 0xFF

	var opened map[string]string
	if err := Open(sealed, &key, &opened); err == nil {
		t.Error("Open should have failed with corrupted data")
	}
}

func TestNoncesAreUnique(t *testing.T) {
	key := testKey()

	a, err := Seal([]byte("same plaintext"), &key)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	b, err := Seal([]byte("same plaintext"), &key)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	if string(a[:24]) == string(b[:24]) {
		t.Error("Two seals reused the same nonce")
	}
}
