package handler

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

// Tool arguments arrive as decoded JSON: numbers are float64, but clients
// also send numeric strings and json.Number, so the helpers accept those.

func stringArg(args map[string]interface{}, name string) string {
	if s, ok := args[name].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func requiredString(args map[string]interface{}, name string) (string, error) {
	s := stringArg(args, name)
	if s == "" {
		return "", types.InvalidRequest("%s is required", name)
	}
	return s, nil
}

func boolArg(args map[string]interface{}, name string) bool {
	switch v := args[name].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	}
	return false
}

func optionalBool(args map[string]interface{}, name string) *bool {
	if _, ok := args[name]; !ok {
		return nil
	}
	v := boolArg(args, name)
	return &v
}

func optionalFloat(args map[string]interface{}, name string) (*float64, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return nil, nil
	}
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil, types.InvalidRequest("%s must be a number", name)
		}
		f = parsed
	case string:
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%g", &f); err != nil {
			return nil, types.InvalidRequest("%s must be a number", name)
		}
	default:
		return nil, types.InvalidRequest("%s must be a number", name)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, types.InvalidRequest("%s must be a finite number", name)
	}
	return &f, nil
}

func optionalInt(args map[string]interface{}, name string) (*int, error) {
	f, err := optionalFloat(args, name)
	if err != nil || f == nil {
		return nil, err
	}
	if *f != math.Trunc(*f) {
		return nil, types.InvalidRequest("%s must be an integer", name)
	}
	if *f < math.MinInt || *f >= math.MaxInt {
		return nil, types.InvalidRequest("%s is out of range", name)
	}
	i := int(*f)
	return &i, nil
}

func optionalInt64(args map[string]interface{}, name string) (*int64, error) {
	i, err := optionalInt(args, name)
	if err != nil || i == nil {
		return nil, err
	}
	v := int64(*i)
	return &v, nil
}

// secondsArg reads a duration given in seconds, checked against [lo, hi].
// Zero means the argument was absent.
func secondsArg(args map[string]interface{}, name string, lo, hi float64) (time.Duration, error) {
	f, err := optionalFloat(args, name)
	if err != nil || f == nil {
		return 0, err
	}
	if err := types.CheckFloat(name, f, lo, hi); err != nil {
		return 0, err
	}
	return time.Duration(*f * float64(time.Second)), nil
}

func stringSlice(args map[string]interface{}, name string) []string {
	switch v := args[name].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return nil
}

func objectArg(args map[string]interface{}, name string) (map[string]interface{}, error) {
	switch v := args[name].(type) {
	case nil:
		return nil, nil
	case map[string]interface{}:
		return v, nil
	case string:
		var out map[string]interface{}
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, types.InvalidRequest("%s must be a JSON object", name)
		}
		return out, nil
	}
	return nil, types.InvalidRequest("%s must be an object", name)
}

// imageRef reads the three image reference variants. resource_uri is an
// alias of image_id.
func imageRef(args map[string]interface{}) types.ImageReference {
	handle := stringArg(args, "image_id")
	if handle == "" {
		handle = stringArg(args, "resource_uri")
	}
	return types.ImageReference{
		ResourceHandle: handle,
		RemoteToken:    stringArg(args, "token"),
		InlineBytes:    stringArg(args, "image_base64"),
	}
}

// waitArgs reads poll_interval and timeout, both in seconds
func waitArgs(args map[string]interface{}) (time.Duration, time.Duration, error) {
	interval, err := secondsArg(args, "poll_interval", types.MinPollSeconds, types.MaxPollSeconds)
	if err != nil {
		return 0, 0, err
	}
	timeout, err := secondsArg(args, "timeout", types.MinTimeoutSeconds, types.MaxTimeoutSeconds)
	if err != nil {
		return 0, 0, err
	}
	return interval, timeout, nil
}
