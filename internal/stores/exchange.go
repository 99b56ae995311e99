package stores

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	exchangeRecordVersion1 = 1

	// Expired entries are retained (already unreadable as live entries) for
	// one extra TTL so the first post-expiry lookup can report Expired
	// instead of NotFound. After that Redis drops the key on its own.
	exchangeRetentionFactor = 2
)

var (
	ErrExchangeNotFound = errors.New("exchange entry not found")
	ErrExchangeExpired  = errors.New("exchange entry expired")
	ErrExchangeBackend  = errors.New("exchange backend unavailable")
)

type exchangeRecord struct {
	Subject   string
	Secret    string
	CreatedAt int64
}

type ExchangeStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewExchangeStore(redisClient redis.UniversalClient, prefix string, ttl time.Duration) *ExchangeStore {
	if prefix == "" {
		prefix = "axh"
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &ExchangeStore{
		redis:  redisClient,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL reports the configured entry lifetime.
func (s *ExchangeStore) TTL() time.Duration {
	return s.ttl
}

// Hash derives the opaque exchange hash for a subject/secret pair.
func Hash(subject, secret string) string {
	sum := sha256.Sum256([]byte(subject + "||" + secret))
	return hex.EncodeToString(sum[:])
}

func (s *ExchangeStore) key(hash string) string {
	return s.prefix + ":" + hash
}

// Put stores a new handoff entry and returns its hash for out-of-band
// transmission. At most one live entry exists per hash; writing the same
// subject/secret pair again restarts its lifetime.
func (s *ExchangeStore) Put(ctx context.Context, subject, secret string) (string, error) {
	if subject == "" {
		return "", errors.New("empty exchange subject")
	}
	if secret == "" {
		return "", errors.New("empty exchange secret")
	}

	hash := Hash(subject, secret)
	encoded, err := encodeExchangeRecord(&exchangeRecord{
		Subject:   subject,
		Secret:    secret,
		CreatedAt: s.now().Unix(),
	})
	if err != nil {
		return "", err
	}

	retention := s.ttl * exchangeRetentionFactor
	if err := s.redis.Set(ctx, s.key(hash), encoded, retention).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrExchangeBackend, err)
	}
	return hash, nil
}

// Resolve consumes an entry. The GETDEL guarantees the entry is gone after
// this call no matter the outcome: a live entry yields its subject exactly
// once, an expired entry yields Expired exactly once, and everything else is
// NotFound. Concurrent resolvers of one hash race on the GETDEL; exactly one
// wins and the losers observe NotFound.
func (s *ExchangeStore) Resolve(ctx context.Context, hash string) (string, error) {
	data, err := s.redis.GetDel(ctx, s.key(hash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrExchangeNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrExchangeBackend, err)
	}

	record, err := decodeExchangeRecord(data)
	if err != nil {
		return "", err
	}
	if s.now().Unix()-record.CreatedAt > int64(s.ttl/time.Second) {
		return "", ErrExchangeExpired
	}
	return record.Subject, nil
}

// Sweep opportunistically purges entries past their TTL. Safe to run
// concurrently with Resolve: each delete runs in an optimistic transaction
// keyed on the entry, so a concurrently consumed entry is simply skipped and
// never double-reported.
func (s *ExchangeStore) Sweep(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, s.prefix+":*", 100).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrExchangeBackend, err)
		}

		for _, key := range keys {
			ok, err := s.sweepKey(ctx, key)
			if err != nil {
				return removed, err
			}
			if ok {
				removed++
			}
		}

		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (s *ExchangeStore) sweepKey(ctx context.Context, key string) (bool, error) {
	var deleted bool
	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			return err
		}

		record, err := decodeExchangeRecord(data)
		if err != nil {
			return err
		}
		if s.now().Unix()-record.CreatedAt <= int64(s.ttl/time.Second) {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		if err == nil {
			deleted = true
		}
		return err
	}, key)

	if err != nil {
		// Lost the race to a concurrent Resolve or Sweep.
		if errors.Is(err, redis.Nil) || errors.Is(err, redis.TxFailedErr) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrExchangeBackend, err)
	}
	return deleted, nil
}

func encodeExchangeRecord(record *exchangeRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(exchangeRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}

	if len(record.Subject) > 65535 || len(record.Secret) > 65535 {
		return nil, errors.New("exchange field length exceeded")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Subject))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Subject)
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Secret))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Secret)

	return buf.Bytes(), nil
}

func decodeExchangeRecord(data []byte) (*exchangeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != exchangeRecordVersion1 {
		return nil, errors.New("invalid exchange record version")
	}

	record := &exchangeRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}

	var subjectLen uint16
	if err := binary.Read(reader, binary.BigEndian, &subjectLen); err != nil {
		return nil, err
	}
	subject := make([]byte, subjectLen)
	if _, err := io.ReadFull(reader, subject); err != nil {
		return nil, err
	}
	record.Subject = string(subject)

	var secretLen uint16
	if err := binary.Read(reader, binary.BigEndian, &secretLen); err != nil {
		return nil, err
	}
	secret := make([]byte, secretLen)
	if _, err := io.ReadFull(reader, secret); err != nil {
		return nil, err
	}
	record.Secret = string(secret)

	return record, nil
}
