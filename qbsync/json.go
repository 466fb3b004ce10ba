package qbsync

import "encoding/json"

// toJSON renders a payload for the operation log; marshal failures yield "".
func toJSON(v interface{}) string {
	if v == nil {
		return ""
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}
