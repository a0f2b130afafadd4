// Package ledger defines the base types of the tangle ledger: vertex identities,
// accounts, transaction and milestone payloads and their deterministic binary codecs
package ledger

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

const (
	VertexIDLength  = 32
	AccountIDLength = 32
	InputIDLength   = 32
	SignatureLength = 64
)

type (
	// VertexID content-derived identity of a transaction vertex
	VertexID [VertexIDLength]byte

	// AccountID identifies a balance account in the ledger state
	AccountID [AccountIDLength]byte

	// InputID uniquely identifies a spend. Two transactions consuming the same
	// InputID form a conflict set
	InputID [InputIDLength]byte

	// MilestoneIndex strictly increasing sequence number of milestones
	MilestoneIndex uint32

	Amount uint64
)

var ErrWrongDataSize = errors.New("wrong data size")

// GenesisVertexID all-zero hash, used as the parent reference of vertices
// attached directly to the origin
var GenesisVertexID = VertexID{}

func HashData(data []byte) VertexID {
	return blake2b.Sum256(data)
}

func VertexIDFromBytes(data []byte) (ret VertexID, err error) {
	if len(data) != VertexIDLength {
		err = errors.Wrapf(ErrWrongDataSize, "VertexIDFromBytes: expected %d bytes, got %d", VertexIDLength, len(data))
		return
	}
	copy(ret[:], data)
	return
}

func VertexIDFromHexString(str string) (ret VertexID, err error) {
	var data []byte
	if data, err = hex.DecodeString(str); err != nil {
		return
	}
	return VertexIDFromBytes(data)
}

func (id VertexID) Bytes() []byte {
	return id[:]
}

func (id VertexID) String() string {
	return hex.EncodeToString(id[:])
}

// StringShort shortened hex for logs
func (id VertexID) StringShort() string {
	return fmt.Sprintf("[%s..]", hex.EncodeToString(id[:4]))
}

func AccountIDFromBytes(data []byte) (ret AccountID, err error) {
	if len(data) != AccountIDLength {
		err = errors.Wrapf(ErrWrongDataSize, "AccountIDFromBytes: expected %d bytes, got %d", AccountIDLength, len(data))
		return
	}
	copy(ret[:], data)
	return
}

func (a AccountID) Bytes() []byte {
	return a[:]
}

func (a AccountID) String() string {
	return hex.EncodeToString(a[:])
}

func (a AccountID) StringShort() string {
	return fmt.Sprintf("a(%s..)", hex.EncodeToString(a[:4]))
}

func (i InputID) String() string {
	return hex.EncodeToString(i[:])
}

func (i InputID) StringShort() string {
	return fmt.Sprintf("in(%s..)", hex.EncodeToString(i[:4]))
}

func (i MilestoneIndex) String() string {
	return fmt.Sprintf("#%d", uint32(i))
}

func LessVertexID(id1, id2 VertexID) bool {
	return bytes.Compare(id1[:], id2[:]) < 0
}

// RandomVertexID for tests only
func RandomVertexID() (ret VertexID) {
	_, _ = rand.Read(ret[:])
	return
}

// RandomAccountID for tests only
func RandomAccountID() (ret AccountID) {
	_, _ = rand.Read(ret[:])
	return
}
