package handlers

import (
	"github.com/telegive/bot-service/internal/services"
)

// field returns data[key] when data is a JSON object.
func field(data any, key string) any {
	obj, ok := data.(map[string]any)
	if !ok {
		return nil
	}
	return obj[key]
}

// asInt accepts JSON numbers, which decode as float64.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

func callError(res *services.Result, err error) any {
	if err != nil {
		return err
	}
	if res != nil {
		return res.Error
	}
	return nil
}
