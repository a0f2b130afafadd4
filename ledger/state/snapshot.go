package state

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prateekvishnu/bee/global"
	"github.com/prateekvishnu/bee/ledger"
	"github.com/prateekvishnu/bee/util"
	"gopkg.in/yaml.v2"
)

// Snapshot is the exported ledger state: every non-zero balance plus the
// watermark. Used by the snapshot collaborator to bootstrap a node without replay

type (
	SnapshotData struct {
		Index    ledger.MilestoneIndex
		Supply   ledger.Amount
		Balances []BalanceRecord
	}

	BalanceRecord struct {
		Account ledger.AccountID
		Balance ledger.Amount
	}

	// SnapshotHeader human-readable YAML companion of the binary snapshot file
	SnapshotHeader struct {
		Description string `yaml:"description"`
		Index       uint32 `yaml:"milestone_index"`
		Supply      uint64 `yaml:"supply"`
		NumAccounts int    `yaml:"num_accounts"`
		CreatedAt   string `yaml:"created_at"`
	}
)

var ErrMalformedSnapshot = errors.New("malformed snapshot")

// ExportSnapshot captures the committed state
func (l *LedgerState) ExportSnapshot() *SnapshotData {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	ret := &SnapshotData{
		Index:    l.latestApplied,
		Supply:   l.supply,
		Balances: make([]BalanceRecord, 0),
	}
	l.ForEachBalance(func(a ledger.AccountID, balance ledger.Amount) bool {
		ret.Balances = append(ret.Balances, BalanceRecord{Account: a, Balance: balance})
		return true
	})
	return ret
}

func (s *SnapshotData) Write(w io.Writer) error {
	buf := bufio.NewWriter(w)
	bin := binary.BigEndian.AppendUint32(nil, uint32(s.Index))
	bin = binary.BigEndian.AppendUint64(bin, uint64(s.Supply))
	bin = binary.BigEndian.AppendUint32(bin, uint32(len(s.Balances)))
	if _, err := buf.Write(bin); err != nil {
		return err
	}
	for i := range s.Balances {
		rec := append([]byte{}, s.Balances[i].Account[:]...)
		rec = binary.BigEndian.AppendUint64(rec, uint64(s.Balances[i].Balance))
		if _, err := buf.Write(rec); err != nil {
			return err
		}
	}
	return buf.Flush()
}

func ReadSnapshot(r io.Reader) (*SnapshotData, error) {
	var fixed [16]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, errors.Wrap(ErrMalformedSnapshot, err.Error())
	}
	ret := &SnapshotData{
		Index:  ledger.MilestoneIndex(binary.BigEndian.Uint32(fixed[0:4])),
		Supply: ledger.Amount(binary.BigEndian.Uint64(fixed[4:12])),
	}
	// the declared record count is untrusted input: allocation grows with the
	// records actually read, never with the header alone
	n := int(binary.BigEndian.Uint32(fixed[12:16]))
	ret.Balances = make([]BalanceRecord, 0, util.Minimum(n, 1024))

	var rec [ledger.AccountIDLength + 8]byte
	sum := uint64(0)
	for i := 0; i < n; i++ {
		if _, err := io.ReadFull(r, rec[:]); err != nil {
			return nil, errors.Wrap(ErrMalformedSnapshot, err.Error())
		}
		br := BalanceRecord{Balance: ledger.Amount(binary.BigEndian.Uint64(rec[ledger.AccountIDLength:]))}
		copy(br.Account[:], rec[:ledger.AccountIDLength])
		sum += uint64(br.Balance)
		ret.Balances = append(ret.Balances, br)
	}
	if sum != uint64(ret.Supply) {
		return nil, errors.Wrapf(ErrMalformedSnapshot, "sum of balances %d != declared supply %d", sum, uint64(ret.Supply))
	}
	return ret, nil
}

// ImportSnapshot writes the snapshot into an empty store in one batch.
// Used at startup instead of full replay
func ImportSnapshot(store global.StateStore, s *SnapshotData) error {
	batch := store.BatchedWriter()
	for i := range s.Balances {
		batch.Set(accountKey(s.Balances[i].Account), binary.BigEndian.AppendUint64(nil, uint64(s.Balances[i].Balance)))
	}
	batch.Set([]byte{PartitionMilestoneIndex}, binary.BigEndian.AppendUint32(nil, uint32(s.Index)))
	batch.Set([]byte{PartitionSupply}, binary.BigEndian.AppendUint64(nil, uint64(s.Supply)))
	return batch.Commit()
}

func (s *SnapshotData) Header(description string) *SnapshotHeader {
	return &SnapshotHeader{
		Description: description,
		Index:       uint32(s.Index),
		Supply:      uint64(s.Supply),
		NumAccounts: len(s.Balances),
		CreatedAt:   time.Now().Format(time.RFC3339),
	}
}

func (h *SnapshotHeader) SaveTo(fname string) error {
	data, err := yaml.Marshal(h)
	if err != nil {
		return err
	}
	return os.WriteFile(fname, data, 0644)
}
