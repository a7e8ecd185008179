package reliability

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

var ErrStoreClosed = errors.New("seen store closed")

const (
	ackDelivered = "delivered"
	ackRead      = "read"

	maxSeenRecordSize = 4 * 1024
)

type seenFlags struct {
	delivered bool
	read      bool
}

type seenRecord struct {
	MessageID string `json:"message_id"`
	Ack       string `json:"ack"`
}

// SeenStore is the persistent idempotence map messageID -> flags.
// Records are appended one JSON line at a time and fsynced, so a
// crash mid-write can lose at most the record being written and
// never corrupts earlier flags. Replayed at open; unknown ack names
// in the file are skipped for forward compatibility.
type SeenStore struct {
	mu    sync.Mutex
	f     *os.File
	state map[string]*seenFlags
}

// OpenSeenStore loads existing flags and opens the file for append.
func OpenSeenStore(path string) (*SeenStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	state := make(map[string]*seenFlags)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1024), maxSeenRecordSize)
	for sc.Scan() {
		var rec seenRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			// A torn final line from a crash mid-write.
			continue
		}
		flags := state[rec.MessageID]
		if flags == nil {
			flags = &seenFlags{}
			state[rec.MessageID] = flags
		}
		switch rec.Ack {
		case ackDelivered:
			flags.delivered = true
		case ackRead:
			flags.read = true
		}
	}
	if err := sc.Err(); err != nil {
		f.Close()
		return nil, err
	}
	return &SeenStore{f: f, state: state}, nil
}

// MarkDelivered records the delivered flag and reports whether this
// was the first time. Only a first transition touches the file.
func (s *SeenStore) MarkDelivered(messageID string) (bool, error) {
	return s.mark(messageID, ackDelivered)
}

// MarkRead records the read flag and reports whether this was the
// first time.
func (s *SeenStore) MarkRead(messageID string) (bool, error) {
	return s.mark(messageID, ackRead)
}

func (s *SeenStore) mark(messageID, ack string) (bool, error) {
	if messageID == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return false, ErrStoreClosed
	}
	flags := s.state[messageID]
	if flags == nil {
		flags = &seenFlags{}
		s.state[messageID] = flags
	}
	switch ack {
	case ackDelivered:
		if flags.delivered {
			return false, nil
		}
	case ackRead:
		if flags.read {
			return false, nil
		}
	}
	line, err := json.Marshal(seenRecord{MessageID: messageID, Ack: ack})
	if err != nil {
		return false, err
	}
	line = append(line, '\n')
	if _, err := s.f.Write(line); err != nil {
		return false, err
	}
	if err := s.f.Sync(); err != nil {
		return false, err
	}
	switch ack {
	case ackDelivered:
		flags.delivered = true
	case ackRead:
		flags.read = true
	}
	return true, nil
}

func (s *SeenStore) HasDelivered(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	flags := s.state[messageID]
	return flags != nil && flags.delivered
}

func (s *SeenStore) HasRead(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	flags := s.state[messageID]
	return flags != nil && flags.read
}

func (s *SeenStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
