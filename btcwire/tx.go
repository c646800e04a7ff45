package btcwire

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// TxInput spends a previous output.
type TxInput struct {
	// PrevTxHash is the hash of the transaction holding the spent output.
	PrevTxHash chainhash.Hash

	// PrevIndex is the index of the spent output.
	PrevIndex uint32

	// SignatureScript satisfies the spent output's script.
	SignatureScript []byte

	// Sequence is the input's sequence number.
	Sequence uint32
}

// TxOutput assigns value to a locking script.
type TxOutput struct {
	// Value is the amount in satoshis.
	Value uint64

	// PkScript is the locking script.
	PkScript []byte
}

// Amount returns the output value as a btcutil.Amount.
func (o TxOutput) Amount() btcutil.Amount {
	return btcutil.Amount(o.Value)
}

// Transaction is a decoded transaction. Scripts and signatures are not
// validated.
type Transaction struct {
	Version  uint32
	Inputs   []TxInput
	Outputs  []TxOutput
	LockTime uint32
}

// TotalValue returns the sum of all output values.
func (tx *Transaction) TotalValue() btcutil.Amount {
	var total btcutil.Amount
	for _, out := range tx.Outputs {
		total += out.Amount()
	}

	return total
}

// DecodeTransaction reads one transaction from r. Input and output counts and
// script lengths are single bytes. Segregated witness serialization is not
// understood.
func DecodeTransaction(r *Reader) (*Transaction, error) {
	tx := &Transaction{}

	var err error
	if tx.Version, err = r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}

	numIn, err := r.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("input count: %w", err)
	}
	tx.Inputs = make([]TxInput, numIn)
	for i := range tx.Inputs {
		if err := decodeTxInput(r, &tx.Inputs[i]); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}

	numOut, err := r.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("output count: %w", err)
	}
	tx.Outputs = make([]TxOutput, numOut)
	for i := range tx.Outputs {
		if err := decodeTxOutput(r, &tx.Outputs[i]); err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
	}

	if tx.LockTime, err = r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("lock time: %w", err)
	}

	return tx, nil
}

func decodeTxInput(r *Reader, in *TxInput) error {
	var err error
	if in.PrevTxHash, err = r.ReadHash(); err != nil {
		return err
	}
	if in.PrevIndex, err = r.ReadUint32(); err != nil {
		return err
	}
	if in.SignatureScript, err = r.ReadBytes8(); err != nil {
		return err
	}
	in.Sequence, err = r.ReadUint32()

	return err
}

func decodeTxOutput(r *Reader, out *TxOutput) error {
	var err error
	if out.Value, err = r.ReadUint64(); err != nil {
		return err
	}
	out.PkScript, err = r.ReadBytes8()

	return err
}
