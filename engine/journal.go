package engine

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/google/uuid"
	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"
)

const (
	JournalJSON = "json"
	JournalXZ   = "xz"
)

const (
	CommandCreateTable = "create_table"
	CommandDeleteTable = "delete_table"
	CommandAddColumn   = "add_column"
	CommandCreateIndex = "create_index"
	CommandInsert      = "insert"
	CommandReplace     = "replace"
	CommandDelete      = "delete"
	CommandEscrow      = "escrow"
)

type Command struct {
	Name      string         `json:"name"`
	Uuid      string         `json:"uuid"`
	Timestamp int64          `json:"timestamp"`
	Table     string         `json:"table"`
	ID        uint64         `json:"id,omitzero"`
	Payload   jsontext.Value `json:"payload,omitempty"`
	Checksum  string         `json:"checksum"`
}

func newCommand(name, table string, id uint64, payload any) (*Command, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", name, err)
	}
	return &Command{
		Name:      name,
		Uuid:      uuid.New().String(),
		Timestamp: time.Now().UnixNano(),
		Table:     table,
		ID:        id,
		Payload:   data,
		Checksum:  checksum(data),
	}, nil
}

func checksum(payload []byte) string {
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:16])
}

type tablePayload struct {
	Columns []columnPayload `json:"columns"`
}

type columnPayload struct {
	Column  columnDefPayload `json:"column"`
	Default []byte           `json:"default,omitempty"`
}

type columnDefPayload struct {
	Name   string `json:"name"`
	Type   int    `json:"type"`
	Escrow bool   `json:"escrow,omitzero"`
}

type recordPayload struct {
	Columns map[string][]byte `json:"columns"`
}

type escrowPayload struct {
	Column uint32 `json:"column"`
	Delta  int64  `json:"delta"`
}

// Journal is the append only redo log of committed work. Lazy commits stay
// in the buffer until a durable commit or Close flushes them.
type Journal struct {
	Filename string
	codec    string
	file     *os.File
	buffer   *bufio.Writer
	stream   *xz.Writer
	mu       sync.Mutex
}

func journalFilename(dir, codec string) string {
	if codec == JournalXZ {
		return filepath.Join(dir, "journal.xz")
	}
	return filepath.Join(dir, "journal.jsonl")
}

func OpenJournal(dir, codec string) (*Journal, error) {
	if codec == "" {
		codec = JournalJSON
	}
	if codec != JournalJSON && codec != JournalXZ {
		return nil, fmt.Errorf("unknown journal codec '%s'", codec)
	}

	filename := journalFilename(dir, codec)
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("open journal for write: %w", err)
	}

	return &Journal{
		Filename: filename,
		codec:    codec,
		file:     f,
		buffer:   bufio.NewWriterSize(f, 1024*1024),
	}, nil
}

func (j *Journal) Append(commands ...*Command) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var w io.Writer = j.buffer
	if j.codec == JournalXZ {
		if j.stream == nil {
			stream, err := xz.NewWriter(j.buffer)
			if err != nil {
				return fmt.Errorf("start xz stream: %w", err)
			}
			j.stream = stream
		}
		w = j.stream
	}

	batch := &bytes.Buffer{}
	for _, command := range commands {
		line, err := json.Marshal(command)
		if err != nil {
			return fmt.Errorf("encode command: %w", err)
		}
		batch.Write(line)
		batch.WriteByte('\n')
	}

	if _, err := w.Write(batch.Bytes()); err != nil {
		return fmt.Errorf("write commands: %w", err)
	}
	return nil
}

// Flush hands buffered commands to the operating system.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.flush()
}

func (j *Journal) flush() error {
	if j.stream != nil {
		err := j.stream.Close()
		j.stream = nil
		if err != nil {
			return fmt.Errorf("close xz stream: %w", err)
		}
	}
	return j.buffer.Flush()
}

// Sync flushes and forces the journal to stable storage.
func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.flush(); err != nil {
		return err
	}
	return j.file.Sync()
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	err := j.flush()
	if closeErr := j.file.Close(); err == nil {
		err = closeErr
	}
	return err
}

// LoadJournal replays every command of the journal in dir through f.
func LoadJournal(dir, codec string, f func(command *Command) error) error {
	filename := journalFilename(dir, codec)
	data, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var r io.Reader = bytes.NewReader(data)
	if codec == JournalXZ {
		r, err = xz.NewReader(r)
		if err != nil {
			return fmt.Errorf("open xz journal: %w", err)
		}
	}

	scanner := bufio.NewScanner(r)
	const maxCapacity = 16 * 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxCapacity)

	line := 0
	for scanner.Scan() {
		line++
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		command := &Command{}
		if err := json.Unmarshal(scanner.Bytes(), command); err != nil {
			return fmt.Errorf("decode journal line %d: %w", line, err)
		}
		if checksum(command.Payload) != command.Checksum {
			return fmt.Errorf("journal line %d (%s): %w", line, command.Uuid, ErrChecksum)
		}
		if err := f(command); err != nil {
			return fmt.Errorf("replay journal line %d (%s): %w", line, command.Name, err)
		}
	}

	return scanner.Err()
}
