package storage

import (
	"context"

	"github.com/vmihailenco/msgpack/v5"
)

// ReadMsgPack reads and decodes a msgpack-encoded object.
func ReadMsgPack(ctx context.Context, s Store, name string, v any) error {
	data, err := ReadFile(ctx, s, name)
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(data, v)
}

// WriteMsgPack encodes v as msgpack and stores it.
func WriteMsgPack(ctx context.Context, s Store, name string, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	return WriteFile(ctx, s, name, data)
}
