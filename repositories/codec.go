package repositories

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack"
)

// Key layout
//
//	rec:{kind}:{id}                          envelope of a record
//	rel:{relation}:{owner}:{order}           owned child row
//	idx:user_name:{name}                     user id
//	idx:account_user:{user}                  account id
//	idx:channel_event:{channel}:{seq}        event id, seq gives insertion order
//	idx:event_position:{event}               key of the event in idx:channel_event
const (
	recordPrefix         = "rec:"
	relationPrefix       = "rel:"
	userNameIndex        = "idx:user_name:"
	accountUserIndex     = "idx:account_user:"
	channelEventIndex    = "idx:channel_event:"
	eventPositionIndex   = "idx:event_position:"
	channelEventSequence = "seq:channel_event"
)

// envelope is what is persisted under a record key: the version token next
// to the entity's own row.
type envelope struct {
	Version string `msgpack:"v"`
	Row     []byte `msgpack:"r"`
}

func serialize(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func deserialize(b []byte, dest any) error {
	return msgpack.Unmarshal(b, dest)
}

func recordKey(kind string, id uuid.UUID) []byte {
	return []byte(recordPrefix + kind + ":" + id.String())
}

func relationKeyPrefix(relation string, owner uuid.UUID) []byte {
	return []byte(relationPrefix + relation + ":" + owner.String() + ":")
}

func ordinalKey(prefix []byte, ordinal int) []byte {
	return fmt.Appendf(append([]byte{}, prefix...), "%08d", ordinal)
}

func channelEventPrefix(channel uuid.UUID) []byte {
	return []byte(channelEventIndex + channel.String() + ":")
}

func channelEventKey(channel uuid.UUID, seq uint64) []byte {
	return fmt.Appendf(channelEventPrefix(channel), "%020d", seq)
}

func decodeEnvelope(raw []byte) (uuid.UUID, []byte, error) {
	var env envelope
	if err := deserialize(raw, &env); err != nil {
		return uuid.Nil, nil, fmt.Errorf("decode envelope: %w", err)
	}
	version, err := uuid.Parse(env.Version)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("decode version: %w", err)
	}
	return version, env.Row, nil
}

func encodeEnvelope(version uuid.UUID, row []byte) ([]byte, error) {
	return serialize(envelope{Version: version.String(), Row: row})
}

// Times are persisted as unix nanoseconds and read back in UTC.
func toUnixNano(t time.Time) int64 {
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func getID(txn *badger.Txn, key []byte) (uuid.UUID, error) {
	item, err := txn.Get(key)
	if err != nil {
		return uuid.Nil, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.FromBytes(raw)
}

func setID(txn *badger.Txn, key []byte, id uuid.UUID) error {
	return txn.Set(key, id[:])
}

// scanPrefix visits every key under prefix in key order. Values handed to
// fn are copies and stay valid after the call.
func scanPrefix(txn *badger.Txn, prefix []byte, fn func(key, val []byte) error) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err = fn(item.KeyCopy(nil), val); err != nil {
			return err
		}
	}
	return nil
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	var keys [][]byte
	err := scanPrefix(txn, prefix, func(key, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err = txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
