package data

import (
	"encoding/json"
	"fmt"
	"strings"
)

// KeyArg is one named argument of a source property key.
type KeyArg struct {
	Name  string
	Value any
}

// GenerateSourcePropertyKey builds a stable identifier for a bound source
// and its arguments, for use as a map key. Arguments keep the order given,
// so the same arguments in a different order yield a different key.
func GenerateSourcePropertyKey(source string, args []KeyArg) (string, error) {
	var b strings.Builder

	name, err := json.Marshal(source)
	if err != nil {
		return "", err
	}
	b.WriteString(`{"source":`)
	b.Write(name)
	b.WriteString(`,"args":{`)

	for i, arg := range args {
		k, err := json.Marshal(arg.Name)
		if err != nil {
			return "", err
		}
		v, err := json.Marshal(arg.Value)
		if err != nil {
			return "", fmt.Errorf("source key %s: argument %s: %w", source, arg.Name, err)
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}

	b.WriteString("}}")
	return b.String(), nil
}
