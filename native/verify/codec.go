package verify

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// The oracle script returns its result as an ABI-encoded (bool, string)
// tuple: a 32-byte boolean word, a 32-byte offset word (always 64, the head
// is exactly two slots), a 32-byte length word, then the string bytes
// right-padded to the next 32-byte boundary. Encoder and decoder must stay
// bit-exact with the deployed script, so both sides share this codec.
var verificationArgs = abi.Arguments{
	{Type: mustABIType("bool")},
	{Type: mustABIType("string")},
}

func mustABIType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(fmt.Sprintf("verify: abi type %s: %v", name, err))
	}
	return t
}

// EncodeVerificationResult packs a (verified, author) pair into the wire
// layout consumed by HandleCallback.
func EncodeVerificationResult(verified bool, author string) ([]byte, error) {
	packed, err := verificationArgs.Pack(verified, author)
	if err != nil {
		return nil, fmt.Errorf("verify: encode result: %w", err)
	}
	return packed, nil
}

// DecodeVerificationResult unpacks the oracle response payload.
func DecodeVerificationResult(payload []byte) (bool, string, error) {
	values, err := verificationArgs.Unpack(payload)
	if err != nil {
		return false, "", fmt.Errorf("verify: decode result: %w", err)
	}
	if len(values) != 2 {
		return false, "", fmt.Errorf("verify: decode result: expected 2 values, got %d", len(values))
	}
	verified, ok := values[0].(bool)
	if !ok {
		return false, "", fmt.Errorf("verify: decode result: first value not a bool")
	}
	author, ok := values[1].(string)
	if !ok {
		return false, "", fmt.Errorf("verify: decode result: second value not a string")
	}
	return verified, author, nil
}
