package authgate

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const phoneChangeRecordVersion1 = 1

var (
	errPhoneChangeNotFound    = errors.New("phone change record not found")
	errPhoneChangeMismatch    = errors.New("phone change code mismatch")
	errPhoneChangeAttempts    = errors.New("phone change attempts exceeded")
	errPhoneChangeUnavailable = errors.New("phone change redis unavailable")
)

func hashPhoneChangeCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

type phoneChangeRecord struct {
	PhoneNumber string
	SecretHash  [32]byte
	ExpiresAt   int64
	Attempts    uint16
}

// One pending change per subject; starting a new change replaces the old one.
type phoneChangeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func newPhoneChangeStore(redisClient redis.UniversalClient, prefix string) *phoneChangeStore {
	if prefix == "" {
		prefix = "apc"
	}
	return &phoneChangeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *phoneChangeStore) key(subject string) string {
	return s.prefix + ":" + subject
}

func (s *phoneChangeStore) Save(ctx context.Context, subject string, record *phoneChangeRecord, ttl time.Duration) error {
	encoded, err := encodePhoneChangeRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(subject), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errPhoneChangeUnavailable, err)
	}
	return nil
}

// Consume verifies a code against the pending record. A correct code deletes
// the record and returns it; a wrong code burns one attempt, and the final
// failed attempt deletes the record outright. The read-check-write runs in an
// optimistic transaction keyed on the record.
func (s *phoneChangeStore) Consume(ctx context.Context, subject, code string, maxAttempts int) (*phoneChangeRecord, error) {
	const maxRetries = 4
	key := s.key(subject)
	codeHash := sha256.Sum256([]byte(code))

	for i := 0; i < maxRetries; i++ {
		var consumed *phoneChangeRecord
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodePhoneChangeRecord(data)
			if err != nil {
				return err
			}
			if time.Now().Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errPhoneChangeNotFound
			}

			if subtle.ConstantTimeCompare(codeHash[:], record.SecretHash[:]) == 1 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				consumed = record
				return nil
			}

			record.Attempts++
			if int(record.Attempts) >= maxAttempts {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errPhoneChangeAttempts
			}

			ttl := time.Until(time.Unix(record.ExpiresAt, 0))
			if ttl <= 0 {
				return errPhoneChangeNotFound
			}
			updated, err := encodePhoneChangeRecord(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			if err != nil {
				return err
			}
			return errPhoneChangeMismatch
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, errPhoneChangeNotFound
			}
			if errors.Is(err, errPhoneChangeNotFound) ||
				errors.Is(err, errPhoneChangeMismatch) ||
				errors.Is(err, errPhoneChangeAttempts) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", errPhoneChangeUnavailable, err)
		}
		return consumed, nil
	}

	return nil, errPhoneChangeNotFound
}

func (s *phoneChangeStore) Delete(ctx context.Context, subject string) error {
	if err := s.redis.Del(ctx, s.key(subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errPhoneChangeUnavailable, err)
	}
	return nil
}

func encodePhoneChangeRecord(record *phoneChangeRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(phoneChangeRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	buf.Write(record.SecretHash[:])

	if len(record.PhoneNumber) > 65535 {
		return nil, errors.New("phone number length exceeded")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.PhoneNumber))); err != nil {
		return nil, err
	}
	buf.WriteString(record.PhoneNumber)

	return buf.Bytes(), nil
}

func decodePhoneChangeRecord(data []byte) (*phoneChangeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != phoneChangeRecordVersion1 {
		return nil, errors.New("invalid phone change record version")
	}

	record := &phoneChangeRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}

	var numberLen uint16
	if err := binary.Read(reader, binary.BigEndian, &numberLen); err != nil {
		return nil, err
	}
	number := make([]byte, numberLen)
	if _, err := io.ReadFull(reader, number); err != nil {
		return nil, err
	}
	record.PhoneNumber = string(number)

	return record, nil
}
