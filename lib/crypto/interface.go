package crypto

// SignerI is the minimal signing capability handed to authorship and vote
// emission. The consensus core only ever sees this interface, never raw key
// material.
type SignerI interface {
	Sign(msg []byte) []byte
	PublicKey() PublicKeyI
}

type PublicKeyI interface {
	Bytes() []byte
	VerifyBytes(msg []byte, sig []byte) bool
	String() string
	Equals(PublicKeyI) bool
}

type PrivateKeyI interface {
	SignerI
	Bytes() []byte
	String() string
	Equals(PrivateKeyI) bool
}

type MultiPublicKeyI interface {
	AggregateSignatures() ([]byte, error)
	VerifyBytes(msg, aggregatedSignature []byte) bool
	AddSigner(signature []byte, index int) error
	SignerEnabledAt(i int) (bool, error)
	PublicKeys() (keys []PublicKeyI)
	SetBitmap(bm []byte) error
	Bitmap() []byte
	Copy() MultiPublicKeyI
	Reset()
}
