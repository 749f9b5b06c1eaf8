package users

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bozweather/trader/internal/clients/kalshi"
	"github.com/bozweather/trader/internal/crypto"
)

// Service resolves users into live exchange clients. Clients are built
// once per user and reused so each user keeps a single token bucket.
type Service struct {
	repo     *Repository
	keystore *crypto.Keystore
	baseURL  string
	log      zerolog.Logger

	mu      sync.Mutex
	clients map[string]*kalshi.Client
}

// NewService creates the user service.
func NewService(repo *Repository, keystore *crypto.Keystore, kalshiBaseURL string, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		keystore: keystore,
		baseURL:  kalshiBaseURL,
		log:      log.With().Str("service", "users").Logger(),
		clients:  make(map[string]*kalshi.Client),
	}
}

// Repo exposes the underlying repository.
func (s *Service) Repo() *Repository {
	return s.repo
}

// Get returns a user by id.
func (s *Service) Get(id string) (*User, error) {
	return s.repo.GetByID(id)
}

// Enabled returns the users that participate in trade cycles.
func (s *Service) Enabled() ([]User, error) {
	all, err := s.repo.List()
	if err != nil {
		return nil, err
	}
	enabled := all[:0]
	for _, u := range all {
		if u.Settings.IsEnabled() {
			enabled = append(enabled, u)
		}
	}
	return enabled, nil
}

// ClientFor returns the user's exchange client, decrypting the stored
// private key on first use. The decrypted key lives only inside the
// client; it never reaches logs or errors.
func (s *Service) ClientFor(u User) (*kalshi.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if client, ok := s.clients[u.ID]; ok {
		return client, nil
	}

	pemData, err := s.keystore.Decrypt(u.EncryptedPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt key for user %s: %w", u.ID, err)
	}
	privateKey, err := crypto.ParsePrivateKey(pemData)
	if err != nil {
		return nil, fmt.Errorf("parse key for user %s: %w", u.ID, err)
	}

	client := kalshi.NewClient(kalshi.Config{
		BaseURL:    s.baseURL,
		APIKeyID:   u.APIKeyID,
		PrivateKey: privateKey,
		Log:        s.log.With().Str("user_id", u.ID).Logger(),
	})
	s.clients[u.ID] = client
	return client, nil
}

// StreamFor builds the exchange stream authenticated as the user. Streams
// are not cached; each caller owns its connection lifecycle.
func (s *Service) StreamFor(u User, wsURL string, onReconnect func()) (*kalshi.Stream, error) {
	pemData, err := s.keystore.Decrypt(u.EncryptedPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt key for user %s: %w", u.ID, err)
	}
	privateKey, err := crypto.ParsePrivateKey(pemData)
	if err != nil {
		return nil, fmt.Errorf("parse key for user %s: %w", u.ID, err)
	}

	return kalshi.NewStream(kalshi.StreamConfig{
		URL:         wsURL,
		APIKeyID:    u.APIKeyID,
		PrivateKey:  privateKey,
		Log:         s.log.With().Str("user_id", u.ID).Logger(),
		OnReconnect: onReconnect,
	}), nil
}
