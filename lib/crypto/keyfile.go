package crypto

import (
	"encoding/json"
	"os"
)

// ValidatorKey is the on-disk form of the node's consensus signing key
type ValidatorKey struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// ValidatorKeyFromFile() loads the consensus private key from a JSON key file
func ValidatorKeyFromFile(filePath string) (PrivateKeyI, error) {
	bz, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	keyFile := new(ValidatorKey)
	if err = json.Unmarshal(bz, keyFile); err != nil {
		return nil, err
	}
	return NewBLSPrivateKeyFromString(keyFile.PrivateKey)
}

// WriteValidatorKeyFile() persists the consensus private key to a JSON key file
func WriteValidatorKeyFile(filePath string, key PrivateKeyI) error {
	bz, err := json.MarshalIndent(&ValidatorKey{
		PublicKey:  key.PublicKey().String(),
		PrivateKey: key.String(),
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, bz, 0o600)
}
