package domain

// CredsKey is the distinguished key holding the account credentials
const CredsKey = "creds"

// KeyPair is a Curve25519 key pair
type KeyPair struct {
	Private []byte `cbor:"1,keyasint"`
	Public  []byte `cbor:"2,keyasint"`
}

// SignedKeyPair is a pre-key with its signature
type SignedKeyPair struct {
	KeyPair   KeyPair `cbor:"1,keyasint"`
	Signature []byte  `cbor:"2,keyasint"`
	KeyID     uint32  `cbor:"3,keyasint"`
}

// Creds is the account-level session material
type Creds struct {
	NoiseKey       KeyPair       `cbor:"1,keyasint"`
	IdentityKey    KeyPair       `cbor:"2,keyasint"`
	SignedPreKey   SignedKeyPair `cbor:"3,keyasint"`
	RegistrationID uint16        `cbor:"4,keyasint"`
	AdvSecretKey   []byte        `cbor:"5,keyasint"`
	AppID          string        `cbor:"6,keyasint,omitempty"`
	BotOpenID      string        `cbor:"7,keyasint,omitempty"`
	CreatedAt      int64         `cbor:"8,keyasint"`
}

// KeyBatch maps category -> id -> value. A nil value removes the key.
type KeyBatch map[string]map[string][]byte

// KeyName joins a category and id into a store key
func KeyName(category, id string) string {
	return category + "-" + id
}
