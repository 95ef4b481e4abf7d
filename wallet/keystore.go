package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/crypto/scrypt"
)

var ErrInvalidPassword = errors.New("invalid password")

// scrypt parameters
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
)

type Keystore struct {
	Address string `json:"address"`
	Crypto  string `json:"crypto"`
	Nonce   string `json:"nonce"`
	Salt    string `json:"salt"`
}

func deriveKey(password string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptKeyLen)
}

// encrypt private key with password (AES-256-GCM)
func encryptPrivateKey(privKey []byte, password string) (cipherText, nonce, salt []byte, err error) {
	salt = make([]byte, saltLen)
	if _, err = io.ReadFull(rand.Reader, salt); err != nil {
		return nil, nil, nil, err
	}
	key, err := deriveKey(password, salt)
	if err != nil {
		return nil, nil, nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, nil, err
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, nil, err
	}
	return gcm.Seal(nil, nonce, privKey, nil), nonce, salt, nil
}

func decryptPrivateKey(cipherText, nonce, salt []byte, password string) ([]byte, error) {
	key, err := deriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("bad nonce length %d", len(nonce))
	}
	plain, err := gcm.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return nil, ErrInvalidPassword
	}
	return plain, nil
}

// SaveKeystore writes the wallet encrypted with password.
func (w *Wallet) SaveKeystore(filename, password string) error {
	ct, nonce, salt, err := encryptPrivateKey(w.Key, password)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(Keystore{
		Address: w.PublicKey().String(),
		Crypto:  hex.EncodeToString(ct),
		Nonce:   hex.EncodeToString(nonce),
		Salt:    hex.EncodeToString(salt),
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0600)
}

// LoadKeystore opens a keystore written by SaveKeystore.
func LoadKeystore(filename, password string) (*Wallet, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var ks Keystore
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, err
	}
	ct, err := hex.DecodeString(ks.Crypto)
	if err != nil {
		return nil, fmt.Errorf("decoding ciphertext: %w", err)
	}
	nonce, err := hex.DecodeString(ks.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decoding nonce: %w", err)
	}
	salt, err := hex.DecodeString(ks.Salt)
	if err != nil {
		return nil, fmt.Errorf("decoding salt: %w", err)
	}
	plain, err := decryptPrivateKey(ct, nonce, salt, password)
	if err != nil {
		return nil, err
	}
	w := &Wallet{Key: solana.PrivateKey(plain)}
	if w.PublicKey().String() != ks.Address {
		return nil, fmt.Errorf("keystore address mismatch: %s", ks.Address)
	}
	return w, nil
}
