package session

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// MemoryStorage 进程内存存储
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStorage 创建空的内存存储
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

// Get 实现 Storage
func (s *MemoryStorage) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key], nil
}

// Set 实现 Storage
func (s *MemoryStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Clear 清空所有值
func (s *MemoryStorage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]string)
}

// CookieStorage 以 cookie 形式保存到发起请求的浏览器，绑定单个请求/响应。
type CookieStorage struct {
	r      *http.Request
	w      http.ResponseWriter
	maxAge time.Duration
	set    map[string]string
}

// NewCookieStorage 创建 cookie 存储，maxAge <= 0 时使用会话 cookie。
func NewCookieStorage(w http.ResponseWriter, r *http.Request, maxAge time.Duration) *CookieStorage {
	return &CookieStorage{r: r, w: w, maxAge: maxAge, set: make(map[string]string)}
}

// Get 实现 Storage，本次请求中写入的值优先于请求携带的 cookie。
func (s *CookieStorage) Get(key string) (string, error) {
	if v, ok := s.set[key]; ok {
		return v, nil
	}
	c, err := s.r.Cookie(key)
	if errors.Is(err, http.ErrNoCookie) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return c.Value, nil
}

// Set 实现 Storage
func (s *CookieStorage) Set(key, value string) error {
	cookie := &http.Cookie{
		Name:     key,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if s.maxAge > 0 {
		cookie.MaxAge = int(s.maxAge.Seconds())
		cookie.Expires = time.Now().Add(s.maxAge)
	}
	if err := cookie.Valid(); err != nil {
		return fmt.Errorf("invalid cookie %q: %w", key, err)
	}
	http.SetCookie(s.w, cookie)
	s.set[key] = value
	return nil
}

// FileStorage 将值保存在磁盘上的 YAML 文件中
type FileStorage struct {
	path string
	mu   sync.Mutex
}

// NewFileStorage 创建文件存储，首次 Set 时创建文件。
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Path 返回文件路径
func (s *FileStorage) Path() string { return s.path }

// Get 实现 Storage
func (s *FileStorage) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return "", err
	}
	return values[key], nil
}

// Set 实现 Storage
func (s *FileStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	values[key] = value

	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.path, err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStorage) load() (map[string]string, error) {
	values := make(map[string]string)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if values == nil {
		values = make(map[string]string)
	}
	return values, nil
}
