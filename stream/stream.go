package stream

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"time"
)

// EndSentinel is the content of the terminal message published when a
// streaming session ends.
const EndSentinel = "END STREAMING"

const (
	// DefaultDelimiter separates messages when Options.Delimiter is zero.
	DefaultDelimiter byte = '\r'
	// DefaultMaxMessageSize bounds a single decoded message.
	DefaultMaxMessageSize = 1 << 20
)

// Options configures a streaming session.
type Options struct {
	// Delimiter separates messages. Defaults to '\r'.
	Delimiter byte `yaml:"delimiter" mapstructure:"delimiter"`
	// Duration ends the session after this long. Zero streams until canceled.
	Duration time.Duration `yaml:"duration" mapstructure:"duration"`
	// ResultsPerCallback batches this many messages per publish, joined by
	// the delimiter. Defaults to 1.
	ResultsPerCallback int `yaml:"results_per_callback" mapstructure:"results_per_callback"`
	// MaxMessageSize bounds a single message. Defaults to 1 MiB.
	MaxMessageSize int `yaml:"max_message_size" mapstructure:"max_message_size"`
}

// ApplyDefaults fills in zero-value fields.
func (o *Options) ApplyDefaults() {
	if o.Delimiter == 0 {
		o.Delimiter = DefaultDelimiter
	}
	if o.ResultsPerCallback <= 0 {
		o.ResultsPerCallback = 1
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = DefaultMaxMessageSize
	}
}

// Decoder reads delimiter separated messages.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder creates a decoder splitting r on delim. maxSize <= 0 uses
// DefaultMaxMessageSize.
func NewDecoder(r io.Reader, delim byte, maxSize int) *Decoder {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	initial := 4096
	if maxSize < initial {
		initial = maxSize
	}
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, initial), maxSize)
	s.Split(splitOn(delim))
	return &Decoder{scanner: s}
}

// Next returns the next non-blank message. Returns io.EOF when the stream ends.
func (d *Decoder) Next() ([]byte, error) {
	for d.scanner.Scan() {
		tok := d.scanner.Bytes()
		if len(bytes.TrimSpace(tok)) == 0 {
			continue
		}
		return append([]byte(nil), tok...), nil
	}
	if err := d.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func splitOn(delim byte) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}
		if i := bytes.IndexByte(data, delim); i >= 0 {
			return i + 1, data[:i], nil
		}
		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}

// Decode runs the decode loop over r, publishing messages until the body
// ends, a read fails, or ctx is done. It returns nil on a clean end of body
// and ctx.Err() when canceled. Messages already decoded are published
// before returning.
func Decode(ctx context.Context, r io.Reader, opts Options, publish func(msg []byte)) error {
	opts.ApplyDefaults()
	dec := NewDecoder(r, opts.Delimiter, opts.MaxMessageSize)

	batch := make([][]byte, 0, opts.ResultsPerCallback)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		publish(bytes.Join(batch, []byte{opts.Delimiter}))
		batch = batch[:0]
	}

	for {
		if err := ctx.Err(); err != nil {
			flush()
			return err
		}
		msg, err := dec.Next()
		if err != nil {
			flush()
			if err == io.EOF {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		if ctx.Err() != nil {
			// canceled while blocked in Read; drop what arrived after
			flush()
			return ctx.Err()
		}
		batch = append(batch, msg)
		if len(batch) >= opts.ResultsPerCallback {
			flush()
		}
	}
}
