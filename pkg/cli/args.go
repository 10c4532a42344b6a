package cli

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dshills/cmdkit/pkg/command"
)

// ParseArguments builds an argument set from a JSON object and key=value
// pairs. Pairs win over the object. A value that is a valid JSON literal is
// decoded ("3", "true", "[1,2]", "\"x\""); anything else is a plain string.
func ParseArguments(pairs []string, jsonArgs string) (command.Arguments, error) {
	args := command.Arguments{}

	if strings.TrimSpace(jsonArgs) != "" {
		if !gjson.Valid(jsonArgs) {
			return nil, fmt.Errorf("invalid JSON arguments: %s", jsonArgs)
		}
		obj := gjson.Parse(jsonArgs)
		if !obj.IsObject() {
			return nil, fmt.Errorf("JSON arguments must be an object, got %s", obj.Type)
		}
		obj.ForEach(func(key, value gjson.Result) bool {
			args[key.String()] = value.Value()
			return true
		})
	}

	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value", pair)
		}
		args[key] = parseValue(raw)
	}
	return args, nil
}

func parseValue(raw string) any {
	if gjson.Valid(raw) {
		return gjson.Parse(raw).Value()
	}
	return raw
}
