package store

import (
	"bytes"
	"fmt"
	"log"

	"github.com/supabase-community/supabase-go"
)

type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// Archive persists order records and call artifacts to Supabase storage.
// When unconfigured it degrades to a logged no-op so calls still complete.
type Archive struct {
	client *supabase.Client
	bucket string
}

func New(config Config) (*Archive, error) {
	if config.URL == "" || config.ServiceRoleKey == "" {
		return &Archive{}, nil
	}
	client, err := supabase.NewClient(config.URL, config.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	bucket := config.Bucket
	if bucket == "" {
		bucket = "orders"
	}
	return &Archive{client: client, bucket: bucket}, nil
}

// Enabled reports whether uploads will actually be sent anywhere.
func (a *Archive) Enabled() bool {
	return a.client != nil
}

func (a *Archive) Upload(key, contentType string, data []byte) error {
	if a.client == nil {
		log.Printf("store: archive disabled, dropping %s (%d bytes)", key, len(data))
		return nil
	}
	_, err := a.client.Storage.UploadFile(a.bucket, key, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}
