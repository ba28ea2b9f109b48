package secrets

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// cacheEntry represents a cached secret with expiration
type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// GCPSecretManager implements Store on Google Cloud Secret Manager.
// Reads are cached briefly; writes invalidate the cache entry so a token
// refresh is visible to the next read.
type GCPSecretManager struct {
	client    *secretmanager.Client
	projectID string
	cache     map[string]*cacheEntry
	cacheMu   sync.RWMutex
	cacheTTL  time.Duration
}

var _ Store = (*GCPSecretManager)(nil)

// NewGCPSecretManager creates a new GCP Secret Manager store
func NewGCPSecretManager(ctx context.Context, projectID string) (*GCPSecretManager, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}

	return &GCPSecretManager{
		client:    client,
		projectID: projectID,
		cache:     make(map[string]*cacheEntry),
		cacheTTL:  5 * time.Minute,
	}, nil
}

// Close closes the Secret Manager client
func (sm *GCPSecretManager) Close() error {
	if sm.client != nil {
		return sm.client.Close()
	}
	return nil
}

// Get retrieves the latest version of the secret stored under key
func (sm *GCPSecretManager) Get(ctx context.Context, key string) (string, error) {
	secretName := sm.secretName(key)

	// Check cache first
	sm.cacheMu.RLock()
	if entry, ok := sm.cache[secretName]; ok && time.Now().Before(entry.expiresAt) {
		sm.cacheMu.RUnlock()
		return entry.value, nil
	}
	sm.cacheMu.RUnlock()

	accessRequest := &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName + "/versions/latest",
	}

	result, err := sm.client.AccessSecretVersion(ctx, accessRequest)
	if err != nil {
		if isNotFoundError(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return "", fmt.Errorf("failed to access secret: %w", err)
	}

	value := string(result.Payload.Data)

	// Cache the result
	sm.cacheMu.Lock()
	sm.cache[secretName] = &cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(sm.cacheTTL),
	}
	sm.cacheMu.Unlock()

	return value, nil
}

// Set creates the secret if needed and adds a new version holding value
func (sm *GCPSecretManager) Set(ctx context.Context, key, value string) error {
	secretName := sm.secretName(key)

	createRequest := &secretmanagerpb.CreateSecretRequest{
		Parent:   fmt.Sprintf("projects/%s", sm.projectID),
		SecretId: sanitizeSecretID(key),
		Secret: &secretmanagerpb.Secret{
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_Automatic_{
					Automatic: &secretmanagerpb.Replication_Automatic{},
				},
			},
		},
	}

	_, err := sm.client.CreateSecret(ctx, createRequest)
	if err != nil && !isAlreadyExistsError(err) {
		return fmt.Errorf("failed to create secret: %w", err)
	}

	addVersionRequest := &secretmanagerpb.AddSecretVersionRequest{
		Parent: secretName,
		Payload: &secretmanagerpb.SecretPayload{
			Data: []byte(value),
		},
	}

	_, err = sm.client.AddSecretVersion(ctx, addVersionRequest)
	if err != nil {
		return fmt.Errorf("failed to add secret version: %w", err)
	}

	// Invalidate cache
	sm.cacheMu.Lock()
	delete(sm.cache, secretName)
	sm.cacheMu.Unlock()

	return nil
}

// secretName constructs the full resource name for a store key
func (sm *GCPSecretManager) secretName(key string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", sm.projectID, sanitizeSecretID(key))
}

// sanitizeSecretID removes or replaces invalid characters for GCP secret IDs.
// Secret IDs can only contain alphanumeric characters, hyphens, and
// underscores; the ":" in token-set keys becomes a hyphen.
func sanitizeSecretID(input string) string {
	var result strings.Builder
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		} else {
			result.WriteRune('-')
		}
	}
	return result.String()
}

// isAlreadyExistsError checks if the error indicates the resource already exists
func isAlreadyExistsError(err error) bool {
	return strings.Contains(err.Error(), "AlreadyExists") || strings.Contains(err.Error(), "already exists")
}

// isNotFoundError checks if the error indicates the secret does not exist
func isNotFoundError(err error) bool {
	return strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "not found")
}
