package message

import (
	"encoding/json"

	"go.uber.org/zap"

	"comm-terminal/internal/logger"
)

// SplitRecords unwraps a JSON array response into its raw elements so each
// record can be decoded on its own.
func SplitRecords(data []byte) ([]json.RawMessage, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, err
	}
	return raws, nil
}

// DecodeRecords decodes each raw record independently. A record that fails to
// decode (malformed payload, unparseable timestamp) is dropped with a logged
// error rather than failing the whole response.
func DecodeRecords[T any](raws []json.RawMessage) ([]T, int) {
	out := make([]T, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			dropped++
			logger.Error("Dropping undecodable record",
				zap.Error(err),
				zap.ByteString("record", raw),
			)
			continue
		}
		out = append(out, rec)
	}
	return out, dropped
}

// DecodeRecord decodes a single record, for realtime insert events.
func DecodeRecord[T any](raw []byte) (T, error) {
	var rec T
	err := json.Unmarshal(raw, &rec)
	return rec, err
}
