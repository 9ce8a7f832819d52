package verify

import (
	"bytes"
	"testing"
)

func TestEncodeVerificationResultLayout(t *testing.T) {
	payload, err := EncodeVerificationResult(true, "bountyHunter69")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// Two head slots, one length slot, one padded data slot.
	if len(payload) != 128 {
		t.Fatalf("payload length = %d, want 128", len(payload))
	}
	boolWord := payload[0:32]
	if !bytes.Equal(boolWord[:31], make([]byte, 31)) || boolWord[31] != 0x01 {
		t.Fatalf("bool word = %x", boolWord)
	}
	offsetWord := payload[32:64]
	if !bytes.Equal(offsetWord[:31], make([]byte, 31)) || offsetWord[31] != 0x40 {
		t.Fatalf("offset word = %x, want 0x40", offsetWord)
	}
	lengthWord := payload[64:96]
	if !bytes.Equal(lengthWord[:31], make([]byte, 31)) || lengthWord[31] != byte(len("bountyHunter69")) {
		t.Fatalf("length word = %x", lengthWord)
	}
	data := payload[96:128]
	if !bytes.Equal(data[:14], []byte("bountyHunter69")) {
		t.Fatalf("string bytes = %x", data)
	}
	if !bytes.Equal(data[14:], make([]byte, 18)) {
		t.Fatalf("string padding not zeroed: %x", data[14:])
	}
}

func TestEncodeVerificationResultFalseWord(t *testing.T) {
	payload, err := EncodeVerificationResult(false, "")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(payload) != 96 {
		t.Fatalf("payload length = %d, want 96", len(payload))
	}
	if !bytes.Equal(payload[0:32], make([]byte, 32)) {
		t.Fatalf("bool word = %x, want all zero", payload[0:32])
	}
	if !bytes.Equal(payload[64:96], make([]byte, 32)) {
		t.Fatalf("length word = %x, want zero", payload[64:96])
	}
}

func TestDecodeVerificationResultRoundTrip(t *testing.T) {
	cases := []struct {
		verified bool
		author   string
	}{
		{true, "bountyHunter69"},
		{false, "someoneElse"},
		{true, ""},
		{true, "exactly-thirty-two-byte-author!!"},
		{false, "a login longer than one abi word to force two data slots"},
	}
	for _, tc := range cases {
		payload, err := EncodeVerificationResult(tc.verified, tc.author)
		if err != nil {
			t.Fatalf("encode (%v, %q): %v", tc.verified, tc.author, err)
		}
		verified, author, err := DecodeVerificationResult(payload)
		if err != nil {
			t.Fatalf("decode (%v, %q): %v", tc.verified, tc.author, err)
		}
		if verified != tc.verified || author != tc.author {
			t.Fatalf("round trip = (%v, %q), want (%v, %q)", verified, author, tc.verified, tc.author)
		}
	}
}

func TestDecodeVerificationResultRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeVerificationResult(nil); err == nil {
		t.Fatalf("nil payload accepted")
	}
	if _, _, err := DecodeVerificationResult([]byte{0x01, 0x02, 0x03}); err == nil {
		t.Fatalf("short payload accepted")
	}
}
