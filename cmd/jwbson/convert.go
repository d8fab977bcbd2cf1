package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"slices"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/GavinLo/jwbson/internal/compress"
	"github.com/GavinLo/jwbson/pkg/bson"
	"github.com/GavinLo/jwbson/pkg/config"
	"github.com/GavinLo/jwbson/pkg/jwon"
	"github.com/GavinLo/jwbson/pkg/streamio"
)

var formats = []string{"bson", "jwon", "cbor", "yaml"}

// jsonC names JSON with comments and trailing commas, accepted as input only.
const jsonC = "jsonc"

// codecs bundles the configured codecs of one run.
type codecs struct {
	bin  *bson.Codec
	text *jwon.Codec
	// json reads jsonc input whatever dialect the config selects.
	json *jwon.Codec
}

func newCodecs(cfg *config.Config, log *slog.Logger, trace bool) (*codecs, error) {
	bctx, err := bson.ContextFromConfig(cfg.Binary)
	if err != nil {
		return nil, fmt.Errorf("binary config: %w", err)
	}
	tctx, err := jwon.ContextFromConfig(cfg.Text)
	if err != nil {
		return nil, fmt.Errorf("text config: %w", err)
	}
	return &codecs{
		bin:  bson.NewCodec(bson.Options{Context: bctx, Logger: log, Trace: trace}),
		text: jwon.NewCodec(jwon.Options{Context: tctx, Logger: log}),
		json: jwon.NewCodec(jwon.Options{Logger: log}),
	}, nil
}

func (c *codecs) decode(format string, data []byte) (any, error) {
	var v any
	switch format {
	case "bson":
		if err := c.bin.Deserialize(bytes.NewReader(data), &v); err != nil {
			return nil, err
		}
	case "jwon":
		if err := c.text.Deserialize(bytes.NewReader(data), &v); err != nil {
			return nil, err
		}
	case jsonC:
		if err := c.json.Deserialize(bytes.NewReader(jsonc.ToJSON(data)), &v); err != nil {
			return nil, err
		}
	case "cbor":
		dm, err := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode()
		if err != nil {
			return nil, err
		}
		if err := dm.Unmarshal(data, &v); err != nil {
			return nil, err
		}
	case "yaml":
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, err
		}
	default:
		return nil, usagef("unknown format %q", format)
	}
	return v, nil
}

func (c *codecs) encode(format string, v any) ([]byte, error) {
	switch format {
	case "bson":
		var buf streamio.Buffer
		if err := c.bin.Serialize(v, &buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case "jwon":
		s, err := c.text.SerializeText(v)
		if err != nil {
			return nil, err
		}
		return []byte(s + "\n"), nil
	case "cbor":
		em, err := cbor.CoreDetEncOptions().EncMode()
		if err != nil {
			return nil, err
		}
		return em.Marshal(v)
	case "yaml":
		return yaml.Marshal(v)
	default:
		return nil, usagef("unknown format %q", format)
	}
}

func readInput(path string, stdin io.Reader, requireZstd bool) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if requireZstd && !compress.IsCompressed(data) {
		return nil, fmt.Errorf("input is not zstd-compressed")
	}
	return compress.Decompress(data)
}

func writeOutput(path string, stdout io.Writer, data []byte) error {
	if path == "" || path == "-" {
		return streamio.WriteAll(stdout, data)
	}
	return os.WriteFile(path, data, 0o644)
}

func runConvert(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var (
		opts    common
		from    string
		to      string
		out     string
		zstdOut bool
		lz4Out  bool
	)
	fs := pflag.NewFlagSet("convert", pflag.ContinueOnError)
	opts.addFlags(fs)
	fs.StringVarP(&from, "from", "f", "bson", "input format: bson, jwon, jsonc, cbor or yaml")
	fs.StringVarP(&to, "to", "t", "jwon", "output format: bson, jwon, cbor or yaml")
	fs.StringVarP(&out, "out", "o", "", "output file (default: stdout)")
	fs.BoolVar(&zstdOut, "zstd-out", false, "compress the output with zstd")
	fs.BoolVar(&lz4Out, "lz4-out", false, "compress the output with lz4")
	if ok, err := parseFlags(fs, args, stdout); !ok {
		return err
	}
	if !slices.Contains(formats, from) && from != jsonC {
		return usagef("unknown input format %q", from)
	}
	if !slices.Contains(formats, to) {
		return usagef("unknown output format %q", to)
	}
	if zstdOut && lz4Out {
		return usagef("--zstd-out and --lz4-out are exclusive")
	}

	log := opts.logger(stderr)
	defer opts.writeProfile(log)
	cfg, err := config.Resolve(opts.configPath)
	if err != nil {
		return err
	}
	cs, err := newCodecs(cfg, log, false)
	if err != nil {
		return err
	}

	data, err := readInput(opts.in, stdin, opts.zstdIn)
	if err != nil {
		return err
	}
	v, err := cs.decode(from, data)
	if err != nil {
		return fmt.Errorf("decode %s: %w", from, err)
	}
	encoded, err := cs.encode(to, v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", to, err)
	}
	switch {
	case zstdOut:
		encoded, err = compress.Compress(encoded)
	case lz4Out:
		encoded, err = compress.CompressLZ4(encoded)
	}
	if err != nil {
		return err
	}
	log.Debug("converted", "from", from, "to", to, "in_bytes", len(data), "out_bytes", len(encoded))
	return writeOutput(out, stdout, encoded)
}

func runDump(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var opts common
	fs := pflag.NewFlagSet("dump", pflag.ContinueOnError)
	opts.addFlags(fs)
	if ok, err := parseFlags(fs, args, stdout); !ok {
		return err
	}

	log := opts.logger(stderr)
	defer opts.writeProfile(log)
	cfg, err := config.Resolve(opts.configPath)
	if err != nil {
		return err
	}
	cs, err := newCodecs(cfg, log, true)
	if err != nil {
		return err
	}
	data, err := readInput(opts.in, stdin, opts.zstdIn)
	if err != nil {
		return err
	}
	v, err := cs.decode("bson", data)
	if err != nil {
		return fmt.Errorf("decode bson: %w", err)
	}
	text, err := cs.text.SerializeText(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "blake3=%x\n%s\n%s\n", blake3.Sum256(data), cs.bin.Trace(), text)
	return err
}
