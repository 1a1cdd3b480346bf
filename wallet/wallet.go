package wallet

import (
	"github.com/tolelom/chestchain/core"
	"github.com/tolelom/chestchain/crypto"
)

// Wallet holds a key pair and builds signed calls. Its public key hex is the
// identity the economy knows the holder by.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key (the caller identity).
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// NewTx creates a signed call. chainID must match the target node and nonce
// the caller's current account nonce; host-only calls ignore the nonce.
func (w *Wallet) NewTx(chainID string, typ core.TxType, nonce uint64, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(chainID, typ, w.pub.Hex(), nonce, payload)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}

// Call creates a signed player call that carries no payload.
func (w *Wallet) Call(chainID string, typ core.TxType, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, typ, nonce, nil)
}
