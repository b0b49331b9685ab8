package utils

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CodeRecord is one issued verification code. EmailHash is the keyed hash of the
// address the code was sent to; the address itself is never stored.
type CodeRecord struct {
	Code      string
	EmailHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// CodeStore keeps at most one live code per email hash.
type CodeStore interface {
	// Issue stores rec and drops any earlier code for the same email. The record is kept
	// for retain past its expiry so a late attempt can be told apart from a wrong code.
	// It returns false, storing nothing, when rec.Code is already held by another record.
	Issue(ctx context.Context, rec CodeRecord, retain time.Duration) (bool, error)
	// Consume removes and returns the record for code, or nil when there is none.
	Consume(ctx context.Context, code string) (*CodeRecord, error)
	// Revoke removes code if present.
	Revoke(ctx context.Context, code string) error
}

// GenerateVerificationCode creates a numeric code with given length.
func GenerateVerificationCode(n int) (string, error) {
	if n <= 0 {
		n = 6
	}
	digits := make([]byte, n)
	for i := 0; i < n; i++ {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		digits[i] = byte('0' + v.Int64())
	}
	return string(digits), nil
}

const (
	codeKeyPrefix      = "verify:code:"
	codeEmailKeyPrefix = "verify:email:"
)

// KEYS[1] code key, KEYS[2] email key; ARGV[1] record, ARGV[2] ttl ms, ARGV[3] code, ARGV[4] code key prefix
var issueCodeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
local prev = redis.call('GET', KEYS[2])
if prev then redis.call('DEL', ARGV[4] .. prev) end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
redis.call('SET', KEYS[2], ARGV[3], 'PX', ARGV[2])
return 1`)

// compare-and-delete so a newer code for the same email keeps its index entry
var releaseEmailScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then return redis.call('DEL', KEYS[1]) end
return 0`)

// RedisCodeStore shares codes between instances.
type RedisCodeStore struct {
	rc *redis.Client
}

func NewRedisCodeStore(rc *redis.Client) *RedisCodeStore {
	return &RedisCodeStore{rc: rc}
}

func (s *RedisCodeStore) Issue(ctx context.Context, rec CodeRecord, retain time.Duration) (bool, error) {
	ttl := rec.ExpiresAt.Sub(rec.IssuedAt) + retain
	if ttl <= 0 {
		return false, errors.New("code ttl must be positive")
	}
	res, err := issueCodeScript.Run(ctx, s.rc,
		[]string{codeKeyPrefix + rec.Code, codeEmailKeyPrefix + rec.EmailHash},
		encodeCodeRecord(rec), ttl.Milliseconds(), rec.Code, codeKeyPrefix,
	).Int()
	if err != nil {
		return false, fmt.Errorf("issue code: %w", err)
	}
	return res == 1, nil
}

func (s *RedisCodeStore) Consume(ctx context.Context, code string) (*CodeRecord, error) {
	val, err := s.rc.GetDel(ctx, codeKeyPrefix+code).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume code: %w", err)
	}
	rec, err := decodeCodeRecord(code, val)
	if err != nil {
		return nil, err
	}
	if err := releaseEmailScript.Run(ctx, s.rc, []string{codeEmailKeyPrefix + rec.EmailHash}, code).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("release code index: %w", err)
	}
	return rec, nil
}

func (s *RedisCodeStore) Revoke(ctx context.Context, code string) error {
	_, err := s.Consume(ctx, code)
	return err
}

// record layout: emailHash|issuedUnixMs|expiresUnixMs
func encodeCodeRecord(rec CodeRecord) string {
	return rec.EmailHash + "|" + strconv.FormatInt(rec.IssuedAt.UnixMilli(), 10) + "|" + strconv.FormatInt(rec.ExpiresAt.UnixMilli(), 10)
}

func decodeCodeRecord(code, val string) (*CodeRecord, error) {
	parts := strings.Split(val, "|")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed code record %q", val)
	}
	issued, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed code record: %w", err)
	}
	expires, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed code record: %w", err)
	}
	return &CodeRecord{
		Code:      code,
		EmailHash: parts[0],
		IssuedAt:  time.UnixMilli(issued).UTC(),
		ExpiresAt: time.UnixMilli(expires).UTC(),
	}, nil
}

type memCode struct {
	rec     CodeRecord
	purgeAt time.Time
}

// MemoryCodeStore is the single-instance fallback used when Redis is disabled.
type MemoryCodeStore struct {
	mu      sync.Mutex
	codes   map[string]memCode
	byEmail map[string]string
	now     func() time.Time
}

func NewMemoryCodeStore(now func() time.Time) *MemoryCodeStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryCodeStore{codes: map[string]memCode{}, byEmail: map[string]string{}, now: now}
}

func (s *MemoryCodeStore) Issue(_ context.Context, rec CodeRecord, retain time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if cur, ok := s.codes[rec.Code]; ok {
		if now.Before(cur.purgeAt) {
			return false, nil
		}
		// a lapsed record is overwritten below, so its email must stop pointing at it
		if s.byEmail[cur.rec.EmailHash] == rec.Code {
			delete(s.byEmail, cur.rec.EmailHash)
		}
	}
	if prev, ok := s.byEmail[rec.EmailHash]; ok {
		if old, ok := s.codes[prev]; ok && old.rec.EmailHash == rec.EmailHash {
			delete(s.codes, prev)
		}
	}
	s.codes[rec.Code] = memCode{rec: rec, purgeAt: rec.ExpiresAt.Add(retain)}
	s.byEmail[rec.EmailHash] = rec.Code
	return true, nil
}

func (s *MemoryCodeStore) Consume(_ context.Context, code string) (*CodeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.codes[code]
	if !ok {
		return nil, nil
	}
	delete(s.codes, code)
	if s.byEmail[cur.rec.EmailHash] == code {
		delete(s.byEmail, cur.rec.EmailHash)
	}
	if !s.now().Before(cur.purgeAt) {
		return nil, nil
	}
	rec := cur.rec
	return &rec, nil
}

func (s *MemoryCodeStore) Revoke(ctx context.Context, code string) error {
	_, err := s.Consume(ctx, code)
	return err
}

// Prune drops records past their retention and reports how many were removed.
func (s *MemoryCodeStore) Prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for code, cur := range s.codes {
		if !now.Before(cur.purgeAt) {
			delete(s.codes, code)
			if s.byEmail[cur.rec.EmailHash] == code {
				delete(s.byEmail, cur.rec.EmailHash)
			}
			n++
		}
	}
	return n
}
