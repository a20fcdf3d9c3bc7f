// Package cfg parses darknet network configuration text.
//
// A configuration is a sequence of blocks. Each block starts with a header
// line "[kind]" and is followed by "key = value" field lines:
//
//	[net]
//	height=416
//	channels=3
//
//	[convolutional]
//	batch_normalize=1
//	filters=32
//	size=3
//
// Blank lines and lines starting with '#' or ';' are ignored. The first block
// describes the network itself; every following block is one layer.
package cfg

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Field is one key/value pair of a block.
type Field struct {
	Key   string
	Value string
}

// Block is one "[kind]" section with its fields in file order.
type Block struct {
	Kind   string
	fields []Field
}

// NewBlock creates an empty block of the given kind.
func NewBlock(kind string) *Block {
	return &Block{Kind: kind}
}

// Set stores value under key. A repeated key keeps its first position and
// takes the last value.
func (b *Block) Set(key, value string) {
	for i := range b.fields {
		if b.fields[i].Key == key {
			b.fields[i].Value = value
			return
		}
	}
	b.fields = append(b.fields, Field{Key: key, Value: value})
}

// Lookup returns the value stored under key.
func (b *Block) Lookup(key string) (string, bool) {
	for _, f := range b.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Get returns the value stored under key, or "" when absent.
func (b *Block) Get(key string) string {
	v, _ := b.Lookup(key)
	return v
}

// Fields returns a copy of the fields in file order.
func (b *Block) Fields() []Field {
	return append([]Field(nil), b.fields...)
}

// Len returns the number of distinct keys.
func (b *Block) Len() int {
	return len(b.fields)
}

// Int parses the integer field key. Absent keys and bad values are errors.
func (b *Block) Int(key string) (int, error) {
	v, ok := b.Lookup(key)
	if !ok {
		return 0, fmt.Errorf("%w: [%s] missing field %q", ErrMalformedConfig, b.Kind, key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: [%s] field %q: %q is not an integer", ErrMalformedConfig, b.Kind, key, v)
	}
	return n, nil
}

// IntDefault is Int with a fallback for absent keys. Present but unparsable
// values are still errors.
func (b *Block) IntDefault(key string, def int) (int, error) {
	if _, ok := b.Lookup(key); !ok {
		return def, nil
	}
	return b.Int(key)
}

// Ints parses a comma separated integer list such as "-1, 61".
func (b *Block) Ints(key string) ([]int, error) {
	v, ok := b.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: [%s] missing field %q", ErrMalformedConfig, b.Kind, key)
	}
	parts := strings.Split(v, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%w: [%s] field %q: %q is not an integer", ErrMalformedConfig, b.Kind, key, p)
		}
		out = append(out, n)
	}
	return out, nil
}

// String renders the block back into configuration syntax.
func (b *Block) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s]\n", b.Kind)
	for _, f := range b.fields {
		fmt.Fprintf(&sb, "%s=%s\n", f.Key, f.Value)
	}
	return sb.String()
}

// Parse reads configuration text and returns its blocks in file order.
func Parse(r io.Reader) ([]*Block, error) {
	var (
		blocks  []*Block
		current *Block
		lineNo  int
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		lineNo++
		raw := sc.Text()
		if raw == "" || isComment(raw) {
			continue
		}
		line := strings.TrimSpace(raw)
		if line == "" || isComment(line) {
			continue
		}

		if line[0] == '[' {
			if !strings.HasSuffix(line, "]") {
				return nil, &SyntaxError{Line: lineNo, Block: len(blocks), Text: line, Reason: "unterminated block header"}
			}
			if current != nil {
				blocks = append(blocks, current)
			}
			current = NewBlock(strings.TrimSpace(line[1 : len(line)-1]))
			continue
		}

		if current == nil {
			return nil, &SyntaxError{Line: lineNo, Block: -1, Text: line, Reason: "field before any block header"}
		}
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, &SyntaxError{Line: lineNo, Block: len(blocks), Text: line, Reason: "expected key=value"}
		}
		current.Set(key, strings.TrimSpace(value))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if current == nil {
		return nil, &SyntaxError{Line: lineNo, Block: -1, Reason: "no block headers"}
	}
	blocks = append(blocks, current)

	return blocks, nil
}

// ParseString parses configuration text held in memory.
func ParseString(s string) ([]*Block, error) {
	return Parse(strings.NewReader(s))
}

// ParseFile parses a configuration file from disk.
//
//nolint:gosec // G304: path comes from trusted caller, not user input.
func ParseFile(path string) ([]*Block, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer func() {
		_ = f.Close() // Ignore close error on read-only file.
	}()

	blocks, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return blocks, nil
}

func isComment(line string) bool {
	return line[0] == '#' || line[0] == ';'
}
