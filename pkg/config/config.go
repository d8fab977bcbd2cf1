// Package config loads the wire settings of both codecs from a YAML file.
//
// The file path comes from the --config flag of the command or from the
// JWBSON_CONFIG environment variable. Keys left out of the file keep the
// values of Default, which describe standard BSON and JSON.
//
//	binary:
//	  type_int32: 0x10
//	  byte_order: big
//	text:
//	  object_start: "("
//	  object_end: ")"
//	  quote: "'"
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable consulted by Load.
const EnvVar = "JWBSON_CONFIG"

type Config struct {
	Binary Binary `yaml:"binary"`
	Text   Text   `yaml:"text"`
}

// Binary configures the binary codec. Tag and marker bytes are integers.
type Binary struct {
	TypeDouble   uint8 `yaml:"type_double"`
	TypeString   uint8 `yaml:"type_string"`
	TypeDocument uint8 `yaml:"type_document"`
	TypeArray    uint8 `yaml:"type_array"`
	TypeBinary   uint8 `yaml:"type_binary"`
	TypeBool     uint8 `yaml:"type_bool"`
	TypeInt32    uint8 `yaml:"type_int32"`
	TypeInt64    uint8 `yaml:"type_int64"`

	SubTypeGeneric uint8 `yaml:"subtype_generic"`
	ValueTrue      uint8 `yaml:"value_true"`
	ValueFalse     uint8 `yaml:"value_false"`
	Terminator     uint8 `yaml:"terminator"`

	// ByteOrder is "little" or "big".
	ByteOrder       string `yaml:"byte_order"`
	Float32AsDouble bool   `yaml:"float32_as_double"`
}

// Text configures the textual codec. Characters are single-rune strings and
// the empty string means no character.
type Text struct {
	ObjectStart       string `yaml:"object_start"`
	ObjectEnd         string `yaml:"object_end"`
	ArrayStart        string `yaml:"array_start"`
	ArrayEnd          string `yaml:"array_end"`
	ArrayAsObject     bool   `yaml:"array_as_object"`
	KeyStart          string `yaml:"key_start"`
	KeyEnd            string `yaml:"key_end"`
	ValueStart        string `yaml:"value_start"`
	ValueEnd          string `yaml:"value_end"`
	KeyValueSeparator string `yaml:"key_value_separator"`
	ValueSeparator    string `yaml:"value_separator"`
	Quote             string `yaml:"quote"`
	StringNeedQuote   bool   `yaml:"string_need_quote"`
	FloatReserve      int    `yaml:"float_reserve"`
	DoubleReserve     int    `yaml:"double_reserve"`
	// BytesEncoding is "base64", "base64url" or "hex".
	BytesEncoding string `yaml:"bytes_encoding"`
}

// Default returns the standard BSON 1.1 and JSON settings.
func Default() *Config {
	return &Config{
		Binary: Binary{
			TypeDouble:      0x01,
			TypeString:      0x02,
			TypeDocument:    0x03,
			TypeArray:       0x04,
			TypeBinary:      0x05,
			TypeBool:        0x08,
			TypeInt32:       0x10,
			TypeInt64:       0x12,
			SubTypeGeneric:  0x00,
			ValueTrue:       0x01,
			ValueFalse:      0x00,
			Terminator:      0x00,
			ByteOrder:       "little",
			Float32AsDouble: true,
		},
		Text: Text{
			ObjectStart:       "{",
			ObjectEnd:         "}",
			ArrayStart:        "[",
			ArrayEnd:          "]",
			KeyStart:          `"`,
			KeyEnd:            `"`,
			KeyValueSeparator: ":",
			ValueSeparator:    ",",
			Quote:             `"`,
			StringNeedQuote:   true,
			FloatReserve:      3,
			DoubleReserve:     6,
			BytesEncoding:     "base64",
		},
	}
}

// Load reads the file named by JWBSON_CONFIG, or returns Default when the
// variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// Resolve loads path when it is set and falls back to Load otherwise.
func Resolve(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	return Load()
}

func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Binary.ByteOrder) {
	case "little", "big":
	default:
		errs = append(errs, fmt.Errorf("binary.byte_order must be little or big, got %q", c.Binary.ByteOrder))
	}

	for _, ch := range []struct{ key, value string }{
		{"object_start", c.Text.ObjectStart},
		{"object_end", c.Text.ObjectEnd},
		{"array_start", c.Text.ArrayStart},
		{"array_end", c.Text.ArrayEnd},
		{"key_start", c.Text.KeyStart},
		{"key_end", c.Text.KeyEnd},
		{"value_start", c.Text.ValueStart},
		{"value_end", c.Text.ValueEnd},
		{"key_value_separator", c.Text.KeyValueSeparator},
		{"value_separator", c.Text.ValueSeparator},
		{"quote", c.Text.Quote},
	} {
		if _, err := Char(ch.value); err != nil {
			errs = append(errs, fmt.Errorf("text.%s: %w", ch.key, err))
		}
	}
	if c.Text.FloatReserve < 0 || c.Text.DoubleReserve < 0 {
		errs = append(errs, errors.New("text float reserves must not be negative"))
	}
	switch c.Text.BytesEncoding {
	case "base64", "base64url", "hex":
	default:
		errs = append(errs, fmt.Errorf("text.bytes_encoding must be base64, base64url or hex, got %q", c.Text.BytesEncoding))
	}

	return errors.Join(errs...)
}

// Char converts a single-rune string to a rune; the empty string is 0.
func Char(s string) (rune, error) {
	if s == "" {
		return 0, nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) {
		return 0, fmt.Errorf("want a single character, got %q", s)
	}
	return r, nil
}
