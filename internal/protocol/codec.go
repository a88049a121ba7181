package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// maxLineSize — максимальный размер одного сообщения.
const maxLineSize = 4 * 1024 * 1024

// Encoder пишет конверты в формате JSON lines. Безопасен для конкурентного использования.
type Encoder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewEncoder создаёт Encoder поверх w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

// Encode записывает один конверт (json.Encoder добавляет перевод строки).
func (e *Encoder) Encode(env Envelope) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(env); err != nil {
		return fmt.Errorf("encode %s: %w", env.Kind, err)
	}
	return nil
}

// LineReader читает строки, разделённые '\n', с ограничением длины.
// Слишком длинная строка пропускается целиком, чтение продолжается со следующей.
type LineReader struct {
	r     *bufio.Reader
	limit int
	buf   []byte
}

// NewLineReader создаёт LineReader поверх r. limit <= 0 — лимит maxLineSize.
func NewLineReader(r io.Reader, limit int) *LineReader {
	if limit <= 0 {
		limit = maxLineSize
	}
	return &LineReader{r: bufio.NewReaderSize(r, 64*1024), limit: limit}
}

// Next возвращает следующую строку без '\n'. Срез валиден до следующего вызова.
// Для пропущенной строки возвращает ErrLineTooLong; io.EOF — конец потока.
func (l *LineReader) Next() ([]byte, error) {
	l.buf = l.buf[:0]
	tooLong := false
	for {
		chunk, err := l.r.ReadSlice('\n')
		if !tooLong {
			if len(l.buf)+len(chunk) > l.limit+1 {
				tooLong = true
				l.buf = l.buf[:0]
			} else {
				l.buf = append(l.buf, chunk...)
			}
		}

		switch {
		case err == nil:
			if tooLong {
				return nil, fmt.Errorf("%w: limit %d bytes", ErrLineTooLong, l.limit)
			}
			return bytes.TrimSuffix(l.buf, []byte{'\n'}), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(l.buf) > 0 && !tooLong:
			// Последняя строка без перевода строки.
			return l.buf, nil
		default:
			return nil, err
		}
	}
}

// Decoder читает конверты из потока JSON lines.
type Decoder struct {
	lines *LineReader
}

// NewDecoder создаёт Decoder поверх r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{lines: NewLineReader(r, maxLineSize)}
}

// Decode читает следующий конверт.
// Возвращает io.EOF при закрытии потока; ErrMalformed — для строки,
// которую не удалось разобрать или которая превысила лимит
// (поток при этом остаётся пригодным).
func (d *Decoder) Decode() (Envelope, error) {
	for {
		line, err := d.lines.Next()
		if err != nil {
			if errors.Is(err, ErrLineTooLong) {
				return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			if errors.Is(err, io.EOF) {
				return Envelope{}, io.EOF
			}
			return Envelope{}, fmt.Errorf("read message: %w", err)
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return env, nil
	}
}
