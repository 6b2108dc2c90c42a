package state

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"nmchain/core/types"
	"nmchain/storage"
)

var (
	// ErrUnknownAssetAccount is returned when a unit transfer references an
	// asset account that was never created.
	ErrUnknownAssetAccount = errors.New("state: unknown asset account")
	// ErrUnauthorizedTransfer is returned when the transfer authority does
	// not own the source account.
	ErrUnauthorizedTransfer = errors.New("state: authority does not own source account")
	// ErrUnitUnavailable is returned when the source account holds no unit.
	ErrUnitUnavailable = errors.New("state: source account holds no unit")
	// ErrDestOccupied is returned when the destination account already holds
	// a unit.
	ErrDestOccupied = errors.New("state: destination account already holds a unit")
	// ErrMintMismatch is returned when source and destination accounts are
	// bound to different mints.
	ErrMintMismatch = errors.New("state: destination account bound to a different mint")
	// ErrInsufficientBalance is returned when a payment debit exceeds the
	// payer's balance.
	ErrInsufficientBalance = errors.New("state: insufficient balance")
)

// Manager provides typed read/write access to node state on top of a raw
// key-value database. Every record is stored under a keccak-hashed,
// prefix-separated key and encoded with RLP.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var (
	accountPrefix      = []byte("account:")
	assetAccountPrefix = []byte("asset-account:")
)

func prefixedKey(prefix, id []byte) []byte {
	buf := make([]byte, len(prefix)+len(id))
	copy(buf, prefix)
	copy(buf[len(prefix):], id)
	return ethcrypto.Keccak256(buf)
}

func accountKey(addr [20]byte) []byte {
	return prefixedKey(accountPrefix, addr[:])
}

func assetAccountKey(id [32]byte) []byte {
	return prefixedKey(assetAccountPrefix, id[:])
}

// readRecord loads and RLP-decodes the record at key into out, reporting
// whether a record was present. Backend lookup misses are not errors.
func (m *Manager) readRecord(key []byte, out interface{}) (bool, error) {
	has, err := m.db.Has(key)
	if err != nil {
		return false, err
	}
	if !has {
		return false, nil
	}
	data, err := m.db.Get(key)
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode record: %w", err)
	}
	return true, nil
}

func (m *Manager) writeRecord(key []byte, record interface{}) error {
	encoded, err := rlp.EncodeToBytes(record)
	if err != nil {
		return fmt.Errorf("state: encode record: %w", err)
	}
	return m.db.Put(key, encoded)
}

// GetAccount returns the balance record for the address. A missing account
// reads as a zero-valued one.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	account := &types.Account{Balance: big.NewInt(0)}
	if _, err := m.readRecord(accountKey(addr), account); err != nil {
		return nil, err
	}
	if account.Balance == nil {
		account.Balance = big.NewInt(0)
	}
	return account, nil
}

// PutAccount persists the balance record for the address.
func (m *Manager) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	stored := *account
	if stored.Balance == nil {
		stored.Balance = big.NewInt(0)
	}
	return m.writeRecord(accountKey(addr), &stored)
}

// AssetAccountGet returns the single-unit asset account for the reference.
func (m *Manager) AssetAccountGet(id [32]byte) (*types.AssetAccount, bool) {
	account := new(types.AssetAccount)
	ok, err := m.readRecord(assetAccountKey(id), account)
	if err != nil || !ok {
		return nil, false
	}
	return account, true
}

// AssetAccountPut persists the asset account under its own reference.
func (m *Manager) AssetAccountPut(account *types.AssetAccount) error {
	if account == nil {
		return fmt.Errorf("state: nil asset account")
	}
	stored := *account
	return m.writeRecord(assetAccountKey(stored.ID), &stored)
}

// TransferUnit moves the single unit from one asset account to another. The
// authority must own the source account, the source must hold the unit and the
// destination must be empty and bound to the same mint. All checks run before
// either record is touched.
func (m *Manager) TransferUnit(from, to [32]byte, authority [20]byte) error {
	source, ok := m.AssetAccountGet(from)
	if !ok {
		return ErrUnknownAssetAccount
	}
	dest, ok := m.AssetAccountGet(to)
	if !ok {
		return ErrUnknownAssetAccount
	}
	if source.Owner != authority {
		return ErrUnauthorizedTransfer
	}
	if source.Units == 0 {
		return ErrUnitUnavailable
	}
	if dest.Units != 0 {
		return ErrDestOccupied
	}
	if dest.Mint != ([32]byte{}) && dest.Mint != source.Mint {
		return ErrMintMismatch
	}
	dest.Mint = source.Mint
	source.Units = 0
	dest.Units = 1
	if err := m.AssetAccountPut(source); err != nil {
		return err
	}
	return m.AssetAccountPut(dest)
}

// TransferPayment moves a fungible amount between balance accounts. The payer
// must cover the full amount; a zero amount is a no-op.
func (m *Manager) TransferPayment(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: payment amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	payer, err := m.GetAccount(from)
	if err != nil {
		return err
	}
	if payer.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	payee, err := m.GetAccount(to)
	if err != nil {
		return err
	}
	payer.Balance = new(big.Int).Sub(payer.Balance, amount)
	payee.Balance = new(big.Int).Add(payee.Balance, amount)
	if err := m.PutAccount(from, payer); err != nil {
		return err
	}
	return m.PutAccount(to, payee)
}
