package codec

import (
	"encoding/base64"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

const (
	// PacketDataSize is the largest serialized transaction the cluster accepts.
	PacketDataSize = 1232

	maxBase58Size = 1683
	maxBase64Size = 1644
)

var (
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
	ErrInvalidTransaction  = errors.New("invalid transaction")
)

// DecodeTransaction decodes an encoded signed transaction and returns both its raw
// wire bytes and the decoded view. An empty encoding means base58.
func DecodeTransaction(encoded string, encoding solana.EncodingType) ([]byte, *solana.Transaction, error) {
	if encoding == "" {
		encoding = solana.EncodingBase58
	}

	var (
		wire []byte
		err  error
	)
	switch encoding {
	case solana.EncodingBase58:
		if len(encoded) > maxBase58Size {
			return nil, nil, fmt.Errorf("%w: base58 encoded transaction too large: %d bytes (max: encoded/raw %d/%d)", ErrInvalidTransaction, len(encoded), maxBase58Size, PacketDataSize)
		}
		wire, err = base58.Decode(encoded)
	case solana.EncodingBase64:
		if len(encoded) > maxBase64Size {
			return nil, nil, fmt.Errorf("%w: base64 encoded transaction too large: %d bytes (max: encoded/raw %d/%d)", ErrInvalidTransaction, len(encoded), maxBase64Size, PacketDataSize)
		}
		wire, err = base64.StdEncoding.DecodeString(encoded)
	default:
		return nil, nil, fmt.Errorf("%w: %s. Supported encodings: base58, base64", ErrUnsupportedEncoding, encoding)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to decode %s: %w", ErrInvalidTransaction, encoding, err)
	}
	if len(wire) > PacketDataSize {
		return nil, nil, fmt.Errorf("%w: decoded transaction too large: %d bytes (max: %d bytes)", ErrInvalidTransaction, len(wire), PacketDataSize)
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(wire))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to deserialize: %w", ErrInvalidTransaction, err)
	}
	if len(tx.Signatures) == 0 {
		return nil, nil, fmt.Errorf("%w: transaction has no signatures", ErrInvalidTransaction)
	}
	return wire, tx, nil
}
