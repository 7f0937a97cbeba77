package tangelo

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

var prettyOptions = &pretty.Options{
	Width:    80,
	Prefix:   "",
	Indent:   "    ",
	SortKeys: false,
}

// stripComments drops every line whose trimmed form starts with //
func stripComments(data []byte) []byte {
	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if bytes.HasPrefix(bytes.TrimSpace(line), []byte(CommentPrefix)) {
			continue
		}
		out.Write(line)
		out.WriteByte('\n')
	}
	return out.Bytes()
}

// decodeConfig parses comment-stripped config text. String fields absent
// from the document are left empty; bool and port fields start from base.
// The returned set holds the known keys that were present.
func decodeConfig(data []byte, base Config) (Config, map[string]bool, error) {
	text := stripComments(data)
	if !gjson.ValidBytes(text) {
		return Config{}, nil, errors.New("invalid JSON")
	}
	doc := gjson.ParseBytes(text)
	if !doc.IsObject() {
		return Config{}, nil, fmt.Errorf("expected a JSON object, got %s", doc.Type)
	}

	c := Config{
		Port:           base.Port,
		DropPrivileges: base.DropPrivileges,
		Daemonize:      base.Daemonize,
		AccessAuth:     base.AccessAuth,
	}
	present := make(map[string]bool)

	var err error
	doc.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if value.Type == gjson.Null {
			return true
		}
		switch k {
		case KeyHostname:
			c.Hostname, err = asString(k, value)
		case KeyPort:
			c.Port, err = asPort(value)
		case KeyRoot:
			c.Root, err = asString(k, value)
		case KeyLogDir:
			c.LogDir, err = asString(k, value)
		case KeyVTKPython:
			c.VTKPython, err = asString(k, value)
		case KeyDropPrivileges:
			c.DropPrivileges, err = asBool(k, value)
		case KeyUser:
			c.User, err = asString(k, value)
		case KeyGroup:
			c.Group, err = asString(k, value)
		case KeyDaemonize:
			c.Daemonize, err = asBool(k, value)
		case KeyAccessAuth:
			c.AccessAuth, err = asBool(k, value)
		default:
			if c.Extra == nil {
				c.Extra = make(map[string]json.RawMessage)
			}
			c.Extra[k] = json.RawMessage(pretty.Ugly([]byte(value.Raw)))
			return true
		}
		present[k] = true
		return err == nil
	})
	if err != nil {
		return Config{}, nil, err
	}

	return c, present, nil
}

func asString(key string, v gjson.Result) (string, error) {
	if v.Type != gjson.String {
		return "", fmt.Errorf("%s: expected a string, got %s", key, v.Type)
	}
	return v.Str, nil
}

// asBool accepts JSON booleans as well as the strings "true" and "false"
// in any case, which older wrappers wrote.
func asBool(key string, v gjson.Result) (bool, error) {
	switch v.Type {
	case gjson.True:
		return true, nil
	case gjson.False:
		return false, nil
	case gjson.String:
		switch strings.ToLower(strings.TrimSpace(v.Str)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return false, fmt.Errorf("%s: expected a boolean, got %s", key, v.Raw)
}

func asPort(v gjson.Result) (int, error) {
	var port int
	switch v.Type {
	case gjson.Number:
		if v.Num != float64(int64(v.Num)) {
			return 0, fmt.Errorf("%s: %s is not an integer", KeyPort, v.Raw)
		}
		port = int(v.Num)
	case gjson.String:
		n, err := strconv.Atoi(strings.TrimSpace(v.Str))
		if err != nil {
			return 0, fmt.Errorf("%s: %q is not a number", KeyPort, v.Str)
		}
		port = n
	default:
		return 0, fmt.Errorf("%s: expected a number, got %s", KeyPort, v.Raw)
	}
	if port < 0 || port > MaxPort {
		return 0, fmt.Errorf("%s: %d out of range 0-%d", KeyPort, port, MaxPort)
	}
	return port, nil
}

// encodeConfig renders c, with the persist rules applied, as the full file
// content: header line followed by indented JSON.
func encodeConfig(c Config) ([]byte, error) {
	c = c.Omitted()

	values := map[string]any{
		KeyHostname:       c.Hostname,
		KeyPort:           c.Port,
		KeyRoot:           c.Root,
		KeyLogDir:         c.LogDir,
		KeyVTKPython:      c.VTKPython,
		KeyDropPrivileges: c.DropPrivileges,
		KeyUser:           c.User,
		KeyGroup:          c.Group,
		KeyDaemonize:      c.Daemonize,
		KeyAccessAuth:     c.AccessAuth,
	}

	out := []byte("{}")
	var err error
	for _, key := range configKeys {
		v := values[key]
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		if out, err = sjson.SetBytes(out, escapeKey(key), v); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
	}

	extraKeys := make([]string, 0, len(c.Extra))
	for k := range c.Extra {
		if !slices.Contains(configKeys, k) {
			extraKeys = append(extraKeys, k)
		}
	}
	slices.Sort(extraKeys)
	for _, key := range extraKeys {
		raw := c.Extra[key]
		if !gjson.ValidBytes(raw) {
			return nil, fmt.Errorf("%s: value is not valid JSON", key)
		}
		if out, err = sjson.SetRawBytes(out, escapeKey(key), raw); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
	}

	var buf bytes.Buffer
	buf.WriteString(ConfigHeader)
	buf.WriteByte('\n')
	buf.Write(pretty.PrettyOptions(out, prettyOptions))
	return buf.Bytes(), nil
}

// escapeKey turns an object key into an sjson path addressing exactly that key
func escapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '\\', '.', '*', '?', '|', '#', '@', '!', ':':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
