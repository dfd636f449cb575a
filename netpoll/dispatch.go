package netpoll

import (
	"log/slog"

	"github.com/ganjayant/lsmkv/engine"
	"github.com/ganjayant/lsmkv/resp"
)

// dispatch runs one decoded command against the engine and appends its
// encoded reply to dst, mirroring the original server's handle_op:
// GET replies with a bulk string (null when the key is absent), SET
// replies OK, and DEL always replies with the integer 1 since this
// store does not report whether the key previously existed.
func dispatch(eng *engine.Engine, cmd resp.Command, dst []byte, logger *slog.Logger) []byte {
	switch cmd.Op {
	case resp.OpGet:
		value, found, err := eng.Get(cmd.Key)
		if err != nil {
			logger.Error("get failed", "error", err)
			return resp.AppendError(dst, "internal server error")
		}
		if !found {
			return resp.AppendBulkString(dst, nil)
		}
		if value == nil {
			// found is authoritative; a stored empty value must still
			// encode as the empty bulk string, not the null one.
			value = []byte{}
		}
		return resp.AppendBulkString(dst, value)

	case resp.OpSet:
		if err := eng.Put(cmd.Key, cmd.Value); err != nil {
			logger.Error("put failed", "error", err)
			return resp.AppendError(dst, "internal server error")
		}
		return resp.AppendSimpleString(dst, "OK")

	case resp.OpDel:
		if err := eng.Delete(cmd.Key); err != nil {
			logger.Error("delete failed", "error", err)
			return resp.AppendError(dst, "internal server error")
		}
		return resp.AppendInteger(dst, 1)

	default:
		return resp.AppendError(dst, "unknown operation")
	}
}
