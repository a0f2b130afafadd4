package ledger

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
)

// Milestone is an authorized checkpoint: a signed pointer into the tangle which,
// once validated, triggers confirmation of its whole past cone.
// Several signatures may be attached, one per authorized issuer key
type (
	Milestone struct {
		Index            MilestoneIndex
		ReferencedVertex VertexID
		Timestamp        time.Time
		Signatures       []MilestoneSignature
	}

	MilestoneSignature struct {
		PublicKey [32]byte
		Signature [SignatureLength]byte
	}
)

const (
	MaxMilestoneSignatures = 32

	msSignatureSize = 32 + SignatureLength
	msFixedSize     = 4 + VertexIDLength + 8 + 1
)

var ErrMalformedMilestone = errors.New("malformed milestone")

// EssenceBytes the signed content: index, referenced vertex, timestamp
func (ms *Milestone) EssenceBytes() []byte {
	ret := make([]byte, 0, msFixedSize-1)
	ret = binary.BigEndian.AppendUint32(ret, uint32(ms.Index))
	ret = append(ret, ms.ReferencedVertex[:]...)
	ret = binary.BigEndian.AppendUint64(ret, uint64(ms.Timestamp.UnixNano()))
	return ret
}

func (ms *Milestone) Bytes() []byte {
	ret := ms.EssenceBytes()
	ret = append(ret, byte(len(ms.Signatures)))
	for i := range ms.Signatures {
		ret = append(ret, ms.Signatures[i].PublicKey[:]...)
		ret = append(ret, ms.Signatures[i].Signature[:]...)
	}
	return ret
}

func MilestoneFromBytes(data []byte) (*Milestone, error) {
	if len(data) < msFixedSize {
		return nil, errors.Wrapf(ErrMalformedMilestone, "too short: %d bytes", len(data))
	}
	ret := &Milestone{}
	pos := 0
	ret.Index = MilestoneIndex(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4
	copy(ret.ReferencedVertex[:], data[pos:pos+VertexIDLength])
	pos += VertexIDLength
	ret.Timestamp = time.Unix(0, int64(binary.BigEndian.Uint64(data[pos:pos+8])))
	pos += 8

	nSigs := int(data[pos])
	pos++
	if nSigs == 0 || nSigs > MaxMilestoneSignatures {
		return nil, errors.Wrapf(ErrMalformedMilestone, "wrong number of signatures: %d", nSigs)
	}
	if len(data) != pos+nSigs*msSignatureSize {
		return nil, errors.Wrapf(ErrMalformedMilestone, "wrong data length %d", len(data))
	}
	ret.Signatures = make([]MilestoneSignature, nSigs)
	for i := 0; i < nSigs; i++ {
		copy(ret.Signatures[i].PublicKey[:], data[pos:pos+32])
		pos += 32
		copy(ret.Signatures[i].Signature[:], data[pos:pos+SignatureLength])
		pos += SignatureLength
	}
	return ret, nil
}
