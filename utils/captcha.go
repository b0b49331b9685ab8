package utils

import (
	"context"
	"time"

	"github.com/mojocn/base64Captcha"
	"github.com/redis/go-redis/v9"
)

// Captcha issues digit captchas and verifies answers. Answers are consumed on check.
type Captcha struct {
	c *base64Captcha.Captcha
}

// NewCaptcha uses Redis for answers when rc is non-nil so captcha works behind load
// balancers, and base64Captcha's memory store otherwise.
func NewCaptcha(rc *redis.Client) *Captcha {
	var store base64Captcha.Store = base64Captcha.DefaultMemStore
	if rc != nil {
		store = &redisCaptchaStore{rc: rc, ttl: 10 * time.Minute}
	}
	// Use a simple digit captcha: width 120, height 40, length 5
	driver := base64Captcha.NewDriverDigit(40, 120, 5, 0.7, 80)
	return &Captcha{c: base64Captcha.NewCaptcha(driver, store)}
}

// Generate creates a captcha and returns (id, dataURI) for frontend to display.
func (c *Captcha) Generate() (string, string, error) {
	id, b64, _, err := c.c.Generate()
	return id, b64, err
}

// Verify checks the answer and consumes the captcha.
func (c *Captcha) Verify(id, answer string) bool {
	if id == "" || answer == "" {
		return false
	}
	return c.c.Verify(id, answer, true)
}

// redisCaptchaStore implements base64Captcha.Store backed by Redis.
type redisCaptchaStore struct {
	rc  *redis.Client
	ttl time.Duration
}

func (s *redisCaptchaStore) key(id string) string {
	return "captcha:" + id
}

func (s *redisCaptchaStore) Set(id string, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.rc.Set(ctx, s.key(id), value, s.ttl).Err()
}

func (s *redisCaptchaStore) Get(id string, clear bool) string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var (
		v   string
		err error
	)
	if clear {
		v, err = s.rc.GetDel(ctx, s.key(id)).Result()
	} else {
		v, err = s.rc.Get(ctx, s.key(id)).Result()
	}
	if err != nil {
		return ""
	}
	return v
}

func (s *redisCaptchaStore) Verify(id, answer string, clear bool) bool {
	v := s.Get(id, clear)
	return v != "" && v == answer
}
