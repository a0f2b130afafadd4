package dag

import (
	"encoding/binary"
	"time"

	"github.com/lunfardo314/unitrie/common"
	"github.com/pkg/errors"
	"github.com/prateekvishnu/bee/global"
	"github.com/prateekvishnu/bee/ledger"
	"github.com/prateekvishnu/bee/tangle/vertex"
)

// Vertex metadata is persisted under its own partition so that confirmation and
// conflict marks survive restarts and re-attachments. Written in the same
// batch as the ledger mutations of the confirming milestone

const PartitionVertexMetadata = byte('v')

const metadataRecordSize = 8 + 1 + 4 + 1

var ErrWrongMetadataRecord = errors.New("wrong vertex metadata record")

func metadataKey(id ledger.VertexID) []byte {
	return common.Concat(PartitionVertexMetadata, id[:])
}

type metadataRecord struct {
	arrivalTime    time.Time
	confirmed      bool
	confirmedBy    ledger.MilestoneIndex
	conflictReason vertex.ConflictReason
}

func (m *metadataRecord) bytes() []byte {
	ret := make([]byte, 0, metadataRecordSize)
	ret = binary.BigEndian.AppendUint64(ret, uint64(m.arrivalTime.UnixNano()))
	if m.confirmed {
		ret = append(ret, 1)
	} else {
		ret = append(ret, 0)
	}
	ret = binary.BigEndian.AppendUint32(ret, uint32(m.confirmedBy))
	ret = append(ret, byte(m.conflictReason))
	return ret
}

func metadataRecordFromBytes(data []byte) (*metadataRecord, error) {
	if len(data) != metadataRecordSize {
		return nil, errors.Wrapf(ErrWrongMetadataRecord, "expected %d bytes, got %d", metadataRecordSize, len(data))
	}
	return &metadataRecord{
		arrivalTime:    time.Unix(0, int64(binary.BigEndian.Uint64(data[:8]))),
		confirmed:      data[8] != 0,
		confirmedBy:    ledger.MilestoneIndex(binary.BigEndian.Uint32(data[9:13])),
		conflictReason: vertex.ConflictReason(data[13]),
	}, nil
}

// WriteVertexMetadata writes the confirmed metadata record of the vertex to the
// writer, normally the batch of the confirming milestone. It takes the marks as
// explicit arguments: during an apply the in-memory vertex is not marked until
// the batch has been committed
func WriteVertexMetadata(w common.KVWriter, v *vertex.Vertex, confirmedBy ledger.MilestoneIndex, reason vertex.ConflictReason) {
	rec := &metadataRecord{
		arrivalTime:    v.ArrivalTime(),
		confirmed:      true,
		confirmedBy:    confirmedBy,
		conflictReason: reason,
	}
	w.Set(metadataKey(v.ID), rec.bytes())
}

// restoreMetadata re-applies persisted confirmation and conflict marks to a
// re-attached vertex. Solidity is never restored, it is recomputed by walking parents
func (d *DAG) restoreMetadata(v *vertex.Vertex) {
	if d.stateStore == nil {
		return
	}
	data := d.stateStore.Get(metadataKey(v.ID))
	if len(data) == 0 {
		return
	}
	rec, err := metadataRecordFromBytes(data)
	if err != nil {
		// stale or corrupted record, ignore and treat vertex as fresh
		return
	}
	v.SetArrivalTime(rec.arrivalTime)
	if rec.confirmed {
		v.SetConfirmed(rec.confirmedBy, rec.conflictReason)
	}
}

// IterateConfirmedMetadata iterates all persisted metadata records
func IterateConfirmedMetadata(store global.StateStore, fun func(id ledger.VertexID, confirmedBy ledger.MilestoneIndex, reason vertex.ConflictReason) bool) {
	store.Iterator([]byte{PartitionVertexMetadata}).Iterate(func(k, data []byte) bool {
		id, err := ledger.VertexIDFromBytes(k[1:])
		if err != nil {
			return true
		}
		rec, err := metadataRecordFromBytes(data)
		if err != nil || !rec.confirmed {
			return true
		}
		return fun(id, rec.confirmedBy, rec.conflictReason)
	})
}
