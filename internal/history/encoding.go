package history

import (
	"fmt"

	"github.com/roach88/bindform/internal/codec"
	"github.com/roach88/bindform/internal/ir"
)

// encodeEntries serializes the log as an array of objects:
//
//	[{"digest":"...","id":"...","seq":1,"state":"{...}","timestamp":"..."}]
func encodeEntries(c *codec.Codec, entries []Entry) (string, error) {
	arr := make(ir.Array, len(entries))
	for i, e := range entries {
		arr[i] = ir.Object{
			"id":        ir.String(e.ID),
			"seq":       ir.Int(e.Seq),
			"timestamp": ir.String(e.Timestamp),
			"digest":    ir.String(e.Digest),
			"state":     ir.String(e.State),
		}
	}
	return c.Encode(arr)
}

func decodeEntries(c *codec.Codec, text string) ([]Entry, error) {
	v, err := c.Decode(text)
	if err != nil {
		return nil, err
	}
	arr, ok := v.(ir.Array)
	if !ok {
		return nil, fmt.Errorf("expected array, got %s", ir.KindOf(v))
	}

	entries := make([]Entry, 0, len(arr))
	for i, elem := range arr {
		obj, ok := elem.(ir.Object)
		if !ok {
			return nil, fmt.Errorf("entry %d: expected object, got %s", i, ir.KindOf(elem))
		}
		state, ok := obj["state"].(ir.String)
		if !ok {
			return nil, fmt.Errorf("entry %d: missing state", i)
		}
		ts, ok := obj["timestamp"].(ir.String)
		if !ok {
			return nil, fmt.Errorf("entry %d: missing timestamp", i)
		}
		e := Entry{State: string(state), Timestamp: string(ts)}
		if id, ok := obj["id"].(ir.String); ok {
			e.ID = string(id)
		}
		if seq, ok := obj["seq"].(ir.Int); ok {
			e.Seq = int64(seq)
		}
		if d, ok := obj["digest"].(ir.String); ok {
			e.Digest = string(d)
		} else {
			e.Digest = ir.DigestOf(e.State)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
