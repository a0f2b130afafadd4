package ledger

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
	"github.com/prateekvishnu/bee/util/lines"
)

// Transaction is the immutable payload of a tangle vertex: a value move from the
// sender account to the output accounts, consuming a set of spend identifiers,
// approving two previous vertices (trunk and branch).
// The identity of the vertex is blake2b-256 of the canonical encoding
type (
	Transaction struct {
		Sender       AccountID
		Inputs       []InputID
		Outputs      []Output
		TrunkParent  VertexID
		BranchParent VertexID
		Signature    [SignatureLength]byte
	}

	Output struct {
		Account AccountID
		Amount  Amount
	}
)

const (
	MaxInputs  = 128
	MaxOutputs = 128

	outputSize = AccountIDLength + 8
	// sender + nIn + nOut + 2 parents + signature
	txFixedSize = AccountIDLength + 2 + 2 + 2*VertexIDLength + SignatureLength
)

var (
	ErrMalformedTransaction = errors.New("malformed transaction")
	ErrAmountOverflow       = errors.New("amount arithmetic overflow")
)

// Bytes canonical deterministic encoding, big-endian
func (tx *Transaction) Bytes() []byte {
	ret := make([]byte, 0, txFixedSize+len(tx.Inputs)*InputIDLength+len(tx.Outputs)*outputSize)
	ret = append(ret, tx.Sender[:]...)
	ret = binary.BigEndian.AppendUint16(ret, uint16(len(tx.Inputs)))
	for i := range tx.Inputs {
		ret = append(ret, tx.Inputs[i][:]...)
	}
	ret = binary.BigEndian.AppendUint16(ret, uint16(len(tx.Outputs)))
	for i := range tx.Outputs {
		ret = append(ret, tx.Outputs[i].Account[:]...)
		ret = binary.BigEndian.AppendUint64(ret, uint64(tx.Outputs[i].Amount))
	}
	ret = append(ret, tx.TrunkParent[:]...)
	ret = append(ret, tx.BranchParent[:]...)
	ret = append(ret, tx.Signature[:]...)
	return ret
}

// EssenceBytes the signed part: everything except the signature
func (tx *Transaction) EssenceBytes() []byte {
	ret := tx.Bytes()
	return ret[:len(ret)-SignatureLength]
}

// ID content-derived vertex identity
func (tx *Transaction) ID() VertexID {
	return HashData(tx.Bytes())
}

func TransactionFromBytes(data []byte) (*Transaction, error) {
	ret := &Transaction{}
	if len(data) < txFixedSize {
		return nil, errors.Wrapf(ErrMalformedTransaction, "too short: %d bytes", len(data))
	}
	pos := 0
	copy(ret.Sender[:], data[pos:pos+AccountIDLength])
	pos += AccountIDLength

	nIn := int(binary.BigEndian.Uint16(data[pos : pos+2]))
	pos += 2
	if nIn > MaxInputs {
		return nil, errors.Wrapf(ErrMalformedTransaction, "too many inputs: %d", nIn)
	}
	if len(data) < pos+nIn*InputIDLength+2 {
		return nil, errors.Wrapf(ErrMalformedTransaction, "truncated input list")
	}
	ret.Inputs = make([]InputID, nIn)
	for i := 0; i < nIn; i++ {
		copy(ret.Inputs[i][:], data[pos:pos+InputIDLength])
		pos += InputIDLength
	}

	nOut := int(binary.BigEndian.Uint16(data[pos : pos+2]))
	pos += 2
	if nOut > MaxOutputs {
		return nil, errors.Wrapf(ErrMalformedTransaction, "too many outputs: %d", nOut)
	}
	if len(data) != pos+nOut*outputSize+2*VertexIDLength+SignatureLength {
		return nil, errors.Wrapf(ErrMalformedTransaction, "wrong data length %d", len(data))
	}
	ret.Outputs = make([]Output, nOut)
	for i := 0; i < nOut; i++ {
		copy(ret.Outputs[i].Account[:], data[pos:pos+AccountIDLength])
		pos += AccountIDLength
		ret.Outputs[i].Amount = Amount(binary.BigEndian.Uint64(data[pos : pos+8]))
		pos += 8
	}
	copy(ret.TrunkParent[:], data[pos:pos+VertexIDLength])
	pos += VertexIDLength
	copy(ret.BranchParent[:], data[pos:pos+VertexIDLength])
	pos += VertexIDLength
	copy(ret.Signature[:], data[pos:])

	if _, err := ret.TotalAmount(); err != nil {
		return nil, err
	}
	return ret, nil
}

// TotalAmount sum of outputs, i.e. the debit against the sender account
func (tx *Transaction) TotalAmount() (Amount, error) {
	sum := uint64(0)
	for i := range tx.Outputs {
		a := uint64(tx.Outputs[i].Amount)
		if sum > math.MaxUint64-a {
			return 0, errors.Wrapf(ErrAmountOverflow, "in transaction %s", tx.ID().StringShort())
		}
		sum += a
	}
	return Amount(sum), nil
}

func (tx *Transaction) MustTotalAmount() Amount {
	ret, err := tx.TotalAmount()
	if err != nil {
		panic(err)
	}
	return ret
}

func (tx *Transaction) Lines(prefix ...string) *lines.Lines {
	txid := tx.ID()
	ret := lines.New(prefix...)
	ret.Add("transaction %s", txid.String())
	ret.Add("  sender: %s", tx.Sender.String())
	ret.Add("  trunk:  %s", tx.TrunkParent.StringShort())
	ret.Add("  branch: %s", tx.BranchParent.StringShort())
	for i := range tx.Inputs {
		ret.Add("  consume %s", tx.Inputs[i].StringShort())
	}
	for i := range tx.Outputs {
		ret.Add("  out %s <- %d", tx.Outputs[i].Account.StringShort(), tx.Outputs[i].Amount)
	}
	return ret
}
