package lib

import (
	"github.com/fxamacker/cbor/v2"
)

/*
	Deterministic binary codec for anything that is hashed or signed. Core
	deterministic CBOR guarantees that independently running nodes produce
	byte-identical encodings for identical values, which block identity and
	aggregated vote signatures depend on.
*/

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	if cborEnc, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if cborDec, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic(err)
	}
}

// Marshal() encodes a value with the deterministic codec
func Marshal(v any) ([]byte, ErrorI) {
	bz, err := cborEnc.Marshal(v)
	if err != nil {
		return nil, ErrMarshal(err)
	}
	return bz, nil
}

// Unmarshal() decodes deterministic codec bytes into a value
func Unmarshal(bz []byte, v any) ErrorI {
	if err := cborDec.Unmarshal(bz, v); err != nil {
		return ErrUnmarshal(err)
	}
	return nil
}
